// Package client implements the client role: it parses user input into
// commands, sends each to the home server and displays the replies.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/meshchat/internal/core"
	"github.com/vovakirdan/meshchat/internal/directory"
	"github.com/vovakirdan/meshchat/internal/proto"
)

// invalidKeyNotice prefixes the server's reply to a join with a wrong key.
const invalidKeyNotice = "invalid key for channel "

// Exchanger sends one payload to addr and returns the reply.
type Exchanger interface {
	Exchange(ctx context.Context, addr string, payload []byte) ([]byte, error)
}

// Config identifies the user and the home server.
type Config struct {
	Nickname string
	// Server is the home server name.
	Server string
	// Addr is the home server address.
	Addr string
}

// Client is the context object of one interactive user.
type Client struct {
	nickname string
	server   string
	addr     string

	dir        *directory.Directory
	net        Exchanger
	registry   *core.Registry[proto.ClientCommand]
	dispatcher *core.Dispatcher[proto.ClientCommand]

	sendMu sync.Mutex // one request in flight

	mu      sync.Mutex
	current string
	out     io.Writer

	log zerolog.Logger
}

// New builds a client. dir holds the channels the user has joined.
func New(cfg Config, dir *directory.Directory, ex Exchanger, out io.Writer, logger *zerolog.Logger) (*Client, error) {
	if cfg.Nickname == "" || cfg.Server == "" {
		return nil, core.Validationf("nickname and server are required")
	}
	c := &Client{
		nickname: cfg.Nickname,
		server:   cfg.Server,
		addr:     cfg.Addr,
		dir:      dir,
		net:      ex,
		out:      out,
		log:      logger.With().Str("component", "client").Str("nickname", cfg.Nickname).Logger(),
	}
	if c.addr == "" {
		c.addr = cfg.Server
	}

	c.registry = core.NewRegistry[proto.ClientCommand]()
	for id, h := range map[string]core.Handler[proto.ClientCommand]{
		proto.CmdAway:   c.handleAway,
		proto.CmdHelp:   c.handleHelp,
		proto.CmdInvite: c.handleInvite,
		proto.CmdJoin:   c.handleJoin,
		proto.CmdList:   c.handleList,
		proto.CmdMsg:    c.handleMsg,
		proto.CmdNames:  c.handleNames,
	} {
		if err := c.registry.Register(id, h); err != nil {
			return nil, fmt.Errorf("register client handlers: %w", err)
		}
	}
	c.dispatcher = core.NewDispatcher(c.registry, c.parse, func(cc proto.ClientCommand) string { return cc.Identifier }, c.handleInvalid)
	return c, nil
}

// Nickname returns the user's nickname.
func (c *Client) Nickname() string { return c.nickname }

// Current returns the channel implicit messages go to.
func (c *Client) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Client) setCurrent(name string) {
	c.mu.Lock()
	c.current = name
	c.mu.Unlock()
}

func (c *Client) parse(line string) (proto.ClientCommand, error) {
	return ParseInput(c.nickname, c.Current(), line)
}

// Handle processes one line of user input. Failures are reported to the
// user and returned; none of them is fatal.
func (c *Client) Handle(ctx context.Context, line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	_, err := c.dispatcher.Handle(ctx, line)
	if err != nil {
		c.report(err)
	}
	return err
}

// Run handles input lines until in is exhausted or ctx ends. Lines are
// read on a separate goroutine so that cancellation is not held up by a
// blocked read; that goroutine ends once in returns.
func (c *Client) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			_ = c.Handle(ctx, line)
		}
	}
}

// Poll asks the home server for pending commands every interval until ctx
// ends.
func (c *Client) Poll(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			poll := proto.Command{Author: c.nickname, Recipient: c.server, Identifier: proto.CmdHelp}
			if err := c.send(ctx, poll); err != nil {
				c.log.Debug().Err(err).Msg("poll failed")
			}
		}
	}
}

// send delivers cmd to the home server and displays the reply.
func (c *Client) send(ctx context.Context, cmd proto.Command) error {
	payload, err := proto.Encode(cmd)
	if err != nil {
		return err
	}

	c.sendMu.Lock()
	reply, err := c.net.Exchange(ctx, c.addr, payload)
	c.sendMu.Unlock()
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", cmd.Identifier, c.server, err)
	}

	cmds, err := proto.DecodeBatch(reply)
	if err != nil {
		c.log.Debug().Err(err).Msg("dropping malformed reply")
	}
	for _, rc := range cmds {
		c.observe(ctx, rc)
		c.display(rc)
	}
	return nil
}

// observe drops the local record of a channel whose host refused the key.
// The notice may arrive with the join reply or on a later poll.
func (c *Client) observe(ctx context.Context, cmd proto.Command) {
	if cmd.Identifier != proto.CmdMsg || cmd.Author != c.server {
		return
	}
	name, ok := strings.CutPrefix(cmd.Param(proto.ParamContent), invalidKeyNotice)
	if !ok {
		return
	}
	if err := c.dir.RemoveChannel(ctx, name); err != nil {
		c.log.Debug().Err(err).Str("channel", name).Msg("cannot forget channel")
	}
	c.mu.Lock()
	if c.current == name {
		c.current = ""
	}
	c.mu.Unlock()
}

func (c *Client) display(cmd proto.Command) {
	var line string
	switch {
	case cmd.Identifier != proto.CmdMsg:
		line = fmt.Sprintf("* %s sent %s", cmd.Author, cmd.Identifier)
	case cmd.Author == c.server:
		line = fmt.Sprintf("-%s- %s", cmd.Author, cmd.Param(proto.ParamContent))
	case cmd.Param(proto.ParamChannel) != "":
		line = fmt.Sprintf("[%s] <%s> %s", cmd.Param(proto.ParamChannel), cmd.Author, cmd.Param(proto.ParamContent))
	default:
		line = fmt.Sprintf("<%s> %s", cmd.Author, cmd.Param(proto.ParamContent))
	}
	c.print(line)
}

func (c *Client) report(err error) {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		c.print("error: " + ce.Message)
		return
	}
	c.print("error: " + err.Error())
}

func (c *Client) print(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}
