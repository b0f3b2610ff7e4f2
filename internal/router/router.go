// Package router decides where an outbound command goes: the outbox of a
// local user, the server hosting a channel or user, or every peer.
package router

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"strconv"
	"sync"

	"github.com/creachadair/taskgroup"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/meshchat/internal/directory"
	"github.com/vovakirdan/meshchat/internal/proto"
)

// DefaultMaxHops bounds the number of server-to-server forwards of a single
// command.
const DefaultMaxHops = 8

var (
	// ErrUnreachable reports a recipient that is neither a known user nor a
	// known channel.
	ErrUnreachable = errors.New("recipient unreachable")
	// ErrHopLimit reports a command dropped after too many forwards.
	ErrHopLimit = errors.New("hop limit exceeded")
)

// Sender delivers one encoded payload to a network address.
type Sender interface {
	Send(ctx context.Context, addr string, payload []byte) error
}

// Config describes the server a router works for.
type Config struct {
	// Self is the name of the local server.
	Self string
	// Peers are the names of the servers receiving broadcasts.
	Peers []string
	// Resolve maps a server name to a dialable address. Nil means names
	// are addresses.
	Resolve func(name string) string
	// MaxHops defaults to DefaultMaxHops.
	MaxHops int
	// OutboxLimit bounds pending commands per local user. Zero means no
	// limit.
	OutboxLimit int
}

// Router routes commands for one server.
type Router struct {
	self    string
	peers   []string
	resolve func(string) string
	maxHops int

	dir     *directory.Directory
	sender  Sender
	outbox  *Outbox
	metrics *routerMetrics
	log     zerolog.Logger
}

// New builds a router resolving recipients through dir and reaching peers
// with sender.
func New(cfg Config, dir *directory.Directory, sender Sender, logger *zerolog.Logger) *Router {
	resolve := cfg.Resolve
	if resolve == nil {
		resolve = func(name string) string { return name }
	}
	maxHops := cfg.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return &Router{
		self:    cfg.Self,
		peers:   append([]string(nil), cfg.Peers...),
		resolve: resolve,
		maxHops: maxHops,
		dir:     dir,
		sender:  sender,
		outbox:  NewOutbox(cfg.OutboxLimit),
		metrics: newRouterMetrics(),
		log:     logger.With().Str("component", "router").Str("server", cfg.Self).Logger(),
	}
}

// Self returns the local server name.
func (r *Router) Self() string { return r.self }

// Peers returns a copy of the configured peer names.
func (r *Router) Peers() []string { return append([]string{}, r.peers...) }

// Outbox returns the local delivery queue.
func (r *Router) Outbox() *Outbox { return r.outbox }

// Metrics returns the router's activity counters.
func (r *Router) Metrics() *expvar.Map { return r.metrics.emap }

// Send routes cmd. A "*" recipient goes to every peer, unless cmd already
// came from a peer: broadcasts are relayed by their first server only.
// Otherwise the recipient is resolved as a user, then as a channel.
// ErrUnreachable is returned when neither resolves.
func (r *Router) Send(ctx context.Context, cmd proto.Command) error {
	r.metrics.routed.Add(1)
	if cmd.Recipient == proto.Broadcast {
		if origin := cmd.Param(proto.ParamOrigin); origin != "" {
			r.log.Debug().Str("command", cmd.Identifier).Str("origin", origin).Msg("not relaying broadcast from peer")
			return nil
		}
		return r.Broadcast(ctx, cmd)
	}

	ok, err := r.sendUser(ctx, cmd)
	if ok || err != nil {
		return err
	}

	ch, found, err := r.dir.FindChannel(ctx, cmd.Recipient)
	if err != nil {
		return err
	}
	if found {
		if ch.Host != r.self {
			return r.SendToPeer(ctx, ch.Host, cmd)
		}
		return r.deliverChannel(ctx, ch, cmd)
	}

	r.metrics.unroutable.Add(1)
	return fmt.Errorf("%w: %q", ErrUnreachable, cmd.Recipient)
}

// sendUser routes cmd to the user named by its recipient. It reports false
// when no such user is known.
func (r *Router) sendUser(ctx context.Context, cmd proto.Command) (bool, error) {
	u, found, err := r.dir.FindUser(ctx, cmd.Recipient)
	if err != nil || !found {
		return false, err
	}
	if u.Server == r.self {
		r.Deliver(cmd)
		return true, nil
	}
	return true, r.SendToPeer(ctx, u.Server, cmd)
}

// deliverChannel hands cmd to every member of a locally hosted channel
// except its author.
func (r *Router) deliverChannel(ctx context.Context, ch directory.Channel, cmd proto.Command) error {
	var errs []error
	for _, member := range ch.Members {
		if member == cmd.Author {
			continue
		}
		mc := cmd.To(member).With(proto.ParamChannel, ch.Name)
		ok, err := r.sendUser(ctx, mc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			r.log.Debug().Str("channel", ch.Name).Str("member", member).Msg("member has no known server")
		}
	}
	return errors.Join(errs...)
}

// Deliver queues cmd in the outbox of its recipient on this server.
func (r *Router) Deliver(cmd proto.Command) {
	r.metrics.delivered.Add(1)
	if !r.outbox.Push(cmd.Recipient, cmd) {
		r.log.Debug().Str("user", cmd.Recipient).Msg("outbox full, oldest command discarded")
	}
}

// Broadcast sends cmd to every peer concurrently. A failing peer does not
// prevent delivery to the others; all failures are joined in the result.
func (r *Router) Broadcast(ctx context.Context, cmd proto.Command) error {
	return r.fanOut(ctx, func(string) proto.Command { return cmd })
}

// Announce sends cmd to every peer, addressing each copy to the peer
// itself.
func (r *Router) Announce(ctx context.Context, cmd proto.Command) error {
	return r.fanOut(ctx, cmd.To)
}

func (r *Router) fanOut(ctx context.Context, forPeer func(peer string) proto.Command) error {
	r.metrics.broadcasts.Add(1)

	var mu sync.Mutex
	var errs []error
	g := taskgroup.New(nil)
	for _, peer := range r.peers {
		g.Go(func() error {
			if err := r.SendToPeer(ctx, peer, forPeer(peer)); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// SendToPeer forwards cmd to the named server. The first forward stamps
// the command with this server as its origin; every forward counts a hop.
func (r *Router) SendToPeer(ctx context.Context, peer string, cmd proto.Command) error {
	if peer == r.self {
		return fmt.Errorf("forward %s to self", cmd.Identifier)
	}
	hops, _ := strconv.Atoi(cmd.Param(proto.ParamHops))
	hops++
	if hops > r.maxHops {
		r.metrics.dropped.Add(1)
		r.log.Warn().Str("peer", peer).Str("command", cmd.Identifier).Int("hops", hops).Msg("dropping command over hop limit")
		return fmt.Errorf("%w: %s to %s", ErrHopLimit, cmd.Identifier, peer)
	}
	if cmd.Param(proto.ParamOrigin) == "" {
		cmd = cmd.With(proto.ParamOrigin, r.self)
	}
	cmd = cmd.With(proto.ParamHops, strconv.Itoa(hops))

	payload, err := proto.Encode(cmd)
	if err != nil {
		return err
	}
	addr := r.resolve(peer)
	r.metrics.forwarded.Add(1)
	if err := r.sender.Send(ctx, addr, payload); err != nil {
		r.metrics.forwardErr.Add(1)
		r.log.Warn().Err(err).Str("peer", peer).Str("addr", addr).Bytes("command", payload).Msg("send to peer failed")
		return fmt.Errorf("send %s to %s: %w", cmd.Identifier, peer, err)
	}
	return nil
}
