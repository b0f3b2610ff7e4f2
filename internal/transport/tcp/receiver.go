package tcp

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/rs/zerolog"
)

const acceptBackoff = 50 * time.Millisecond

// HandlerFunc processes one inbound message and returns the reply to write
// back on the same connection, or nil for none.
type HandlerFunc func(ctx context.Context, msg []byte) []byte

// Receiver is the receive worker: it accepts connections, reads one
// message from each and hands it to the handler.
type Receiver struct {
	handler    HandlerFunc
	bufferSize int
	timeout    time.Duration
	log        zerolog.Logger
}

// NewReceiver builds a receive worker.
func NewReceiver(handler HandlerFunc, bufferSize int, timeout time.Duration, logger *zerolog.Logger) *Receiver {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Receiver{
		handler:    handler,
		bufferSize: bufferSize,
		timeout:    timeout,
		log:        logger.With().Str("component", "receiver").Logger(),
	}
}

// Serve accepts connections from lst until ctx ends or lst is closed. When
// ctx ends the listener is closed; Serve waits for in-flight connections
// before returning.
func (r *Receiver) Serve(ctx context.Context, lst net.Listener) error {
	// A net.Listener does not obey a context, so close it when ctx ends.
	stop := context.AfterFunc(ctx, func() { lst.Close() })
	defer stop()

	g := taskgroup.New(nil)
	for {
		conn, err := lst.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				g.Wait()
				return nil
			}
			r.log.Warn().Err(err).Msg("accept failed")
			time.Sleep(acceptBackoff)
			continue
		}
		g.Go(func() error {
			r.serveConn(ctx, conn)
			return nil
		})
	}
}

func (r *Receiver) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	remote := conn.RemoteAddr().String()
	_ = conn.SetReadDeadline(time.Now().Add(r.timeout))
	msg, err := ReadMessage(conn, r.bufferSize)
	if err != nil {
		r.log.Warn().Err(err).Str("remote", remote).Msg("read message")
		return
	}
	if len(msg) == 0 {
		return
	}

	reply := r.handler(ctx, msg)
	if len(reply) == 0 {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(r.timeout))
	if _, err := conn.Write(reply); err != nil {
		r.log.Debug().Err(err).Str("remote", remote).Msg("write reply")
	}
}
