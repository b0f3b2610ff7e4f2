// Package tcp implements the one-message-per-connection framing used
// between clients and servers and between peer servers.
//
// A message is every byte read from a connection until the writer closes
// its side, or until a read returns fewer bytes than the buffer size.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	// DefaultBufferSize is the read buffer size used when none is set.
	DefaultBufferSize = 1024
	// DefaultTimeout bounds a whole connect/send/receive sequence.
	DefaultTimeout = 5 * time.Second
)

// ErrTransport is wrapped by every transport failure.
var ErrTransport = errors.New("transport error")

// Error reports a failed network operation against a destination.
type Error struct {
	Op   string
	Addr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// ReadMessage reads one message from r using reads of bufSize bytes.
func ReadMessage(r io.Reader, bufSize int) ([]byte, error) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	buf := make([]byte, bufSize)
	var data []byte
	for {
		n, err := r.Read(buf)
		data = append(data, buf[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return data, nil
			}
			return data, err
		}
		if n < bufSize {
			return data, nil
		}
	}
}

// Dialer opens one connection per message.
type Dialer struct {
	Timeout    time.Duration
	BufferSize int
}

func (d Dialer) timeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultTimeout
	}
	return d.Timeout
}

// dial connects to addr. The returned connection is closed when ctx ends
// and carries a deadline bounding the whole exchange.
func (d Dialer) dial(ctx context.Context, addr string) (net.Conn, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout())

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		cancel()
		return nil, nil, &Error{Op: "dial", Addr: addr, Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	release := func() {
		stop()
		cancel()
		conn.Close()
	}
	return conn, release, nil
}

// Send delivers payload to addr without waiting for a reply.
func (d Dialer) Send(ctx context.Context, addr string, payload []byte) error {
	conn, release, err := d.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer release()

	if _, err := conn.Write(payload); err != nil {
		return &Error{Op: "write", Addr: addr, Err: err}
	}
	return nil
}

// Exchange delivers payload to addr, half-closes the connection and reads
// the full reply.
func (d Dialer) Exchange(ctx context.Context, addr string, payload []byte) ([]byte, error) {
	conn, release, err := d.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := conn.Write(payload); err != nil {
		return nil, &Error{Op: "write", Addr: addr, Err: err}
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return nil, &Error{Op: "close write", Addr: addr, Err: err}
		}
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return nil, &Error{Op: "read", Addr: addr, Err: err}
	}
	return reply, nil
}
