package client

import (
	"context"
	"strings"

	"github.com/vovakirdan/meshchat/internal/core"
	"github.com/vovakirdan/meshchat/internal/directory"
	"github.com/vovakirdan/meshchat/internal/proto"
)

func arity(cc proto.ClientCommand, low, high int) error {
	n := len(cc.Parameters)
	if n >= low && (high < 0 || n <= high) {
		return nil
	}
	return core.Validationf("wrong number of parameters for %s, usage: %s", cc.Identifier, core.Usage(cc.Identifier))
}

func (c *Client) command(recipient, id string, params map[string]string) proto.Command {
	return proto.Command{Author: c.nickname, Recipient: recipient, Identifier: id, Parameters: params}
}

func (c *Client) handleAway(ctx context.Context, cc proto.ClientCommand) error {
	msg := strings.Join(cc.Parameters, " ")
	return c.send(ctx, c.command(proto.Broadcast, proto.CmdAway, map[string]string{proto.ParamMessage: msg}))
}

func (c *Client) handleHelp(_ context.Context, cc proto.ClientCommand) error {
	if err := arity(cc, 0, 0); err != nil {
		return err
	}
	c.print(core.FormatHelp(core.HelpTable(c.registry)))
	return nil
}

func (c *Client) handleInvalid(_ context.Context, cc proto.ClientCommand) error {
	return core.UnknownCommand(cc.Identifier)
}

func (c *Client) handleInvite(ctx context.Context, cc proto.ClientCommand) error {
	if err := arity(cc, 2, 2); err != nil {
		return err
	}
	user, name := cc.Parameters[0], cc.Parameters[1]
	if user == proto.Broadcast {
		return core.Validationf("cannot invite %q, name a user", user)
	}
	ch, found, err := c.dir.FindChannel(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return core.Validationf("you have not joined channel %s", name)
	}
	return c.send(ctx, c.command(user, proto.CmdInvite, map[string]string{
		proto.ParamChannel: ch.Name,
		proto.ParamKey:     ch.Key,
	}))
}

func (c *Client) handleJoin(ctx context.Context, cc proto.ClientCommand) error {
	if err := arity(cc, 1, 2); err != nil {
		return err
	}
	name := cc.Parameters[0]
	key := ""
	if len(cc.Parameters) == 2 {
		key = cc.Parameters[1]
	}
	if err := directory.ValidChannelName(name); err != nil {
		return core.Validationf("invalid channel name %q", name)
	}

	_, rejoin, err := c.dir.FindChannel(ctx, name)
	if err != nil {
		return err
	}
	// Recorded before the reply is read so that a refusal in the same
	// reply removes it again.
	ch := directory.Channel{Name: name, Host: c.server, Key: key, Members: []string{c.nickname}}
	if err := c.dir.UpsertChannel(ctx, ch); err != nil {
		return err
	}
	err = c.send(ctx, c.command(proto.Broadcast, proto.CmdJoin, map[string]string{
		proto.ParamChannel: name,
		proto.ParamKey:     key,
		proto.ParamHost:    "",
	}))
	if err != nil {
		if rejoin {
			return err
		}
		if rmErr := c.dir.RemoveChannel(ctx, name); rmErr != nil {
			c.log.Debug().Err(rmErr).Str("channel", name).Msg("cannot forget channel")
		}
		return err
	}
	if _, joined, _ := c.dir.FindChannel(ctx, name); joined {
		c.setCurrent(name)
	}
	return nil
}

func (c *Client) handleList(ctx context.Context, cc proto.ClientCommand) error {
	if err := arity(cc, 0, 0); err != nil {
		return err
	}
	return c.send(ctx, c.command(proto.Broadcast, proto.CmdList, nil))
}

func (c *Client) handleMsg(ctx context.Context, cc proto.ClientCommand) error {
	if err := arity(cc, 2, -1); err != nil {
		return err
	}
	target := cc.Parameters[0]
	if target == proto.Broadcast {
		return core.Validationf("cannot message %q, name a user or channel", target)
	}
	content := strings.Join(cc.Parameters[1:], " ")
	return c.send(ctx, c.command(target, proto.CmdMsg, map[string]string{proto.ParamContent: content}))
}

func (c *Client) handleNames(ctx context.Context, cc proto.ClientCommand) error {
	if err := arity(cc, 0, 1); err != nil {
		return err
	}
	channel := ""
	if len(cc.Parameters) == 1 {
		channel = cc.Parameters[0]
	}
	return c.send(ctx, c.command(proto.Broadcast, proto.CmdNames, map[string]string{proto.ParamChannel: channel}))
}
