package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/meshchat/internal/auth"
	"github.com/vovakirdan/meshchat/internal/directory"
	"github.com/vovakirdan/meshchat/internal/proto"
	"github.com/vovakirdan/meshchat/internal/router"
)

// local reports whether cmd was sent by a client of this server.
func local(cmd proto.Command) bool {
	return cmd.Param(proto.ParamOrigin) == ""
}

func (s *Server) handleAway(ctx context.Context, cmd proto.Command) error {
	away, err := s.dir.ToggleAway(ctx, cmd.Author, cmd.Param(proto.ParamMessage))
	if err != nil {
		return err
	}
	if !local(cmd) {
		return nil
	}
	if cmd.Recipient == proto.Broadcast {
		if err := s.router.Broadcast(ctx, cmd); err != nil {
			s.log.Warn().Err(err).Str("author", cmd.Author).Msg("away not propagated to every peer")
		}
	}
	if away {
		return s.reply(ctx, cmd, "You have been marked as being away")
	}
	return s.reply(ctx, cmd, "You are no longer marked as being away")
}

func (s *Server) handleHelp(context.Context, proto.Command) error { return nil }

func (s *Server) handleInvalid(_ context.Context, cmd proto.Command) error {
	s.log.Debug().Str("command", cmd.Identifier).Str("author", cmd.Author).Msg("ignoring unknown command")
	return nil
}

func (s *Server) handleInvite(ctx context.Context, cmd proto.Command) error {
	name := cmd.Param(proto.ParamChannel)
	ch, found, err := s.dir.FindChannel(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return s.reply(ctx, cmd, fmt.Sprintf("channel %s does not exist", name))
	}
	if !auth.CompareKey(ch.Key, cmd.Param(proto.ParamKey)) {
		return s.reply(ctx, cmd, fmt.Sprintf("invalid key for channel %s", name))
	}

	notice := proto.Command{
		Author:     cmd.Author,
		Recipient:  cmd.Recipient,
		Identifier: proto.CmdMsg,
		Parameters: map[string]string{
			proto.ParamContent: fmt.Sprintf("%s invites you to join %s", cmd.Author, name),
			proto.ParamChannel: name,
		},
	}
	if key := cmd.Param(proto.ParamKey); key != "" {
		notice = notice.With(proto.ParamKey, key)
	}
	err = s.router.Send(ctx, notice)
	if errors.Is(err, router.ErrUnreachable) {
		return s.reply(ctx, cmd, fmt.Sprintf("no such nick: %s", cmd.Recipient))
	}
	return err
}

// handleJoin covers, in order: an announcement of a channel created on
// another server, a join for an unknown channel that makes this server its
// host, a join on a channel hosted here, and a join that must be forwarded
// to the host.
func (s *Server) handleJoin(ctx context.Context, cmd proto.Command) error {
	name := cmd.Param(proto.ParamChannel)
	host := cmd.Param(proto.ParamHost)
	key := cmd.Param(proto.ParamKey)
	announced := cmd.Recipient == s.name && host != "" && host != s.name

	ch, found, err := s.dir.FindChannel(ctx, name)
	if err != nil {
		return err
	}

	switch {
	case !found && announced:
		// Stub record; key is already hashed by the host.
		stub := directory.Channel{Name: name, Host: host, Key: key}
		if err := s.dir.CreateChannel(ctx, stub); err != nil && !errors.Is(err, directory.ErrChannelExists) {
			return err
		}
		s.log.Debug().Str("channel", name).Str("host", host).Msg("channel announced")
		return nil

	case !found:
		return s.host(ctx, cmd, name, key)

	case announced:
		if ch.Host != host {
			s.log.Warn().Str("channel", name).Str("host", ch.Host).Str("announced", host).Msg("ignoring conflicting channel announcement")
		}
		return nil

	case ch.Host == s.name:
		if !auth.CompareKey(ch.Key, key) {
			return s.reply(ctx, cmd, fmt.Sprintf("invalid key for channel %s", name))
		}
		if ch.AddMember(cmd.Author) {
			if err := s.dir.UpsertChannel(ctx, ch); err != nil {
				return err
			}
		}
		return s.reply(ctx, cmd, "joined "+name)

	default:
		fwd := cmd.With(proto.ParamHost, ch.Host).To(name)
		return s.router.SendToPeer(ctx, ch.Host, fwd)
	}
}

// host creates a channel owned by this server and announces it to every
// peer.
func (s *Server) host(ctx context.Context, cmd proto.Command, name, key string) error {
	hashed, err := auth.HashKey(key, s.keyCost)
	if errors.Is(err, auth.ErrKeyTooLong) {
		return s.reply(ctx, cmd, fmt.Sprintf("key too long for channel %s, at most %d bytes", name, auth.MaxKeyLen))
	}
	if err != nil {
		return err
	}
	ch := directory.Channel{Name: name, Host: s.name, Key: hashed, Members: []string{cmd.Author}}
	if err := s.dir.CreateChannel(ctx, ch); err != nil {
		if errors.Is(err, directory.ErrInvalidRecord) {
			return s.reply(ctx, cmd, fmt.Sprintf("invalid channel name %q", name))
		}
		return err
	}
	s.log.Info().Str("channel", name).Str("author", cmd.Author).Msg("hosting new channel")

	announcement := proto.Command{
		Author:     cmd.Author,
		Identifier: proto.CmdJoin,
		Parameters: map[string]string{
			proto.ParamChannel: name,
			proto.ParamKey:     hashed,
			proto.ParamHost:    s.name,
		},
	}
	// Peers record the author on its home server, not on the host.
	if origin := cmd.Param(proto.ParamOrigin); origin != "" {
		announcement = announcement.With(proto.ParamOrigin, origin)
	}
	if err := s.router.Announce(ctx, announcement); err != nil {
		s.log.Warn().Err(err).Str("channel", name).Msg("channel not announced to every peer")
	}
	return s.reply(ctx, cmd, "joined "+name)
}

func (s *Server) handleList(ctx context.Context, cmd proto.Command) error {
	chs, err := s.dir.Channels(ctx)
	if err != nil {
		return err
	}
	if len(chs) == 0 {
		return s.reply(ctx, cmd, "no channels")
	}
	names := make([]string, len(chs))
	for i, ch := range chs {
		names[i] = ch.Name
	}
	return s.reply(ctx, cmd, strings.Join(names, "\n"))
}

func (s *Server) handleMsg(ctx context.Context, cmd proto.Command) error {
	ch, found, err := s.dir.FindChannel(ctx, cmd.Recipient)
	if err != nil {
		return err
	}
	if found && ch.Host == s.name {
		msg := directory.Message{Author: cmd.Author, Channel: ch.Name, Content: cmd.Param(proto.ParamContent)}
		if _, err := s.dir.AddMessage(ctx, msg); err != nil {
			s.log.Warn().Err(err).Str("channel", ch.Name).Msg("message not recorded")
		}
	}

	if local(cmd) {
		reg, away, err := s.dir.FindAway(ctx, cmd.Recipient)
		if err != nil {
			return err
		}
		if away {
			if err := s.reply(ctx, cmd, fmt.Sprintf("%s is away: %s", reg.Nickname, reg.Message)); err != nil {
				return err
			}
		}
	}

	err = s.router.Send(ctx, cmd)
	if errors.Is(err, router.ErrUnreachable) {
		if local(cmd) {
			return s.reply(ctx, cmd, "no such nick/channel: "+cmd.Recipient)
		}
		s.log.Info().Str("recipient", cmd.Recipient).Str("author", cmd.Author).Msg("dropping message for unknown recipient")
		return nil
	}
	return err
}

func (s *Server) handleNames(ctx context.Context, cmd proto.Command) error {
	if name := cmd.Param(proto.ParamChannel); name != "" {
		ch, found, err := s.dir.FindChannel(ctx, name)
		if err != nil {
			return err
		}
		if !found {
			return s.reply(ctx, cmd, fmt.Sprintf("channel %s does not exist", name))
		}
		return s.names(ctx, cmd, ch)
	}

	chs, err := s.dir.Channels(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, ch := range chs {
		if err := s.names(ctx, cmd, ch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// names answers a names request for ch, or asks its host to.
func (s *Server) names(ctx context.Context, cmd proto.Command, ch directory.Channel) error {
	if ch.Host != s.name {
		return s.router.SendToPeer(ctx, ch.Host, cmd.With(proto.ParamChannel, ch.Name))
	}
	return s.reply(ctx, cmd, FormatNames(ch))
}

// FormatNames renders the member listing of a channel.
func FormatNames(ch directory.Channel) string {
	return fmt.Sprintf("%q: %s", ch.Name, strings.Join(ch.Members, " - "))
}
