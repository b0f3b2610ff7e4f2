// Package server implements the server role: it decodes inbound commands,
// queues them for a single handler worker and returns to each local client
// the commands waiting in its outbox.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/meshchat/internal/auth"
	"github.com/vovakirdan/meshchat/internal/core"
	"github.com/vovakirdan/meshchat/internal/directory"
	"github.com/vovakirdan/meshchat/internal/proto"
	"github.com/vovakirdan/meshchat/internal/router"
)

const (
	defaultQueueSize     = 64
	defaultHandleTimeout = 4 * time.Second
)

// Config holds the server-role settings.
type Config struct {
	// QueueSize bounds the inbound queue between the receive worker and the
	// handler worker.
	QueueSize int
	// HandleTimeout bounds how long a client request waits for its command
	// to be handled before the reply is written.
	HandleTimeout time.Duration
	// KeyCost is the bcrypt cost for channel keys.
	KeyCost int
}

type inbound struct {
	cmd  proto.Command
	done chan struct{}
}

// Server is the context object shared by the server's workers.
type Server struct {
	name       string
	dir        *directory.Directory
	router     *router.Router
	dispatcher *core.Dispatcher[proto.Command]
	registry   *core.Registry[proto.Command]
	queue      chan inbound

	handleTimeout time.Duration
	keyCost       int
	log           zerolog.Logger
}

// New builds a server named after rt.Self. It fails if the handler table
// cannot be registered.
func New(cfg Config, dir *directory.Directory, rt *router.Router, logger *zerolog.Logger) (*Server, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = defaultHandleTimeout
	}
	if cfg.KeyCost == 0 {
		cfg.KeyCost = auth.DefaultKeyCost
	}
	s := &Server{
		name:          rt.Self(),
		dir:           dir,
		router:        rt,
		queue:         make(chan inbound, cfg.QueueSize),
		handleTimeout: cfg.HandleTimeout,
		keyCost:       cfg.KeyCost,
		log:           logger.With().Str("component", "handler").Str("server", rt.Self()).Logger(),
	}

	s.registry = core.NewRegistry[proto.Command]()
	for id, h := range map[string]core.Handler[proto.Command]{
		proto.CmdAway:   s.handleAway,
		proto.CmdHelp:   s.handleHelp,
		proto.CmdInvite: s.handleInvite,
		proto.CmdJoin:   s.handleJoin,
		proto.CmdList:   s.handleList,
		proto.CmdMsg:    s.handleMsg,
		proto.CmdNames:  s.handleNames,
	} {
		if err := s.registry.Register(id, h); err != nil {
			return nil, fmt.Errorf("register server handlers: %w", err)
		}
	}
	s.dispatcher = core.NewDispatcher(s.registry, proto.DecodeString, func(c proto.Command) string { return c.Identifier }, s.handleInvalid)
	return s, nil
}

// Name returns the server name.
func (s *Server) Name() string { return s.name }

// Directory returns the server's directory.
func (s *Server) Directory() *directory.Directory { return s.dir }

// Router returns the server's router.
func (s *Server) Router() *router.Router { return s.router }

// Run is the handler worker. It drains the inbound queue until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-s.queue:
			s.process(ctx, in)
		}
	}
}

func (s *Server) process(ctx context.Context, in inbound) {
	defer close(in.done)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("command", in.cmd.Identifier).Msg("handler panicked")
		}
	}()
	if err := s.Handle(ctx, in.cmd); err != nil {
		s.log.Warn().Err(err).Str("author", in.cmd.Author).Str("recipient", in.cmd.Recipient).Msg("command failed")
	}
}

// Handle records the author of cmd and dispatches it synchronously.
func (s *Server) Handle(ctx context.Context, cmd proto.Command) error {
	s.observe(ctx, cmd)
	return s.dispatcher.Dispatch(ctx, cmd)
}

// Receive is the receive worker's message handler. It queues the decoded
// command, waits for the handler worker to finish with it and, for a
// command sent by a local client, returns that client's pending commands.
// Malformed input is dropped.
func (s *Server) Receive(ctx context.Context, msg []byte) []byte {
	cmd, err := proto.Decode(msg)
	if err != nil {
		s.log.Debug().Err(err).Msg("dropping malformed command")
		return nil
	}

	timer := time.NewTimer(s.handleTimeout)
	defer timer.Stop()

	in := inbound{cmd: cmd, done: make(chan struct{})}
	select {
	case s.queue <- in:
	case <-ctx.Done():
		return nil
	case <-timer.C:
		s.log.Warn().Str("command", cmd.Identifier).Str("author", cmd.Author).Msg("inbound queue full, dropping command")
		return nil
	}

	if cmd.Param(proto.ParamOrigin) != "" {
		// Peers do not read replies.
		return nil
	}
	select {
	case <-in.done:
	case <-ctx.Done():
		return nil
	case <-timer.C:
		s.log.Warn().Str("command", cmd.Identifier).Str("author", cmd.Author).Msg("handler did not finish in time")
	}

	pending := s.router.Outbox().Drain(cmd.Author)
	if len(pending) == 0 {
		return nil
	}
	reply, err := proto.EncodeBatch(pending)
	if err != nil {
		s.log.Warn().Err(err).Str("author", cmd.Author).Msg("encode reply")
	}
	return reply
}

// observe records which server the author of cmd is attached to. Commands
// from peers carry the author's home server as their origin.
func (s *Server) observe(ctx context.Context, cmd proto.Command) {
	origin := cmd.Param(proto.ParamOrigin)
	server := s.name
	if origin != "" {
		if cmd.Author == origin {
			// Authored by a server, not a user.
			return
		}
		server = origin
	}
	if cmd.Author == s.name {
		return
	}
	if err := s.dir.UpsertUser(ctx, directory.User{Nickname: cmd.Author, Server: server}); err != nil {
		s.log.Debug().Err(err).Str("author", cmd.Author).Msg("cannot record user")
	}
}

// reply sends a notice authored by this server to the author of cmd.
func (s *Server) reply(ctx context.Context, cmd proto.Command, content string) error {
	notice := proto.Command{
		Author:     s.name,
		Recipient:  cmd.Author,
		Identifier: proto.CmdMsg,
		Parameters: map[string]string{proto.ParamContent: content},
	}
	if origin := cmd.Param(proto.ParamOrigin); origin != "" && origin != s.name {
		return s.router.SendToPeer(ctx, origin, notice)
	}
	s.router.Deliver(notice)
	return nil
}
