package app

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/meshchat/internal/config"
	"github.com/vovakirdan/meshchat/internal/proto"
	"github.com/vovakirdan/meshchat/internal/transport/tcp"
)

type node struct {
	name string
	addr string
	app  *App
	lst  net.Listener
}

func listen(t *testing.T) (net.Listener, string) {
	t.Helper()
	lst, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return lst, strconv.Itoa(lst.Addr().(*net.TCPAddr).Port)
}

// startNetwork runs two peered servers until the test ends.
func startNetwork(t *testing.T) (node, node) {
	t.Helper()
	logger := zerolog.Nop()

	lstA, nameA := listen(t)
	lstB, nameB := listen(t)
	nodes := []node{{name: nameA, lst: lstA}, {name: nameB, lst: lstB}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, len(nodes))
	for i := range nodes {
		cfg := config.Default()
		cfg.Name = nodes[i].name
		cfg.ListenHost = "127.0.0.1"
		cfg.Peers = []string{nodes[1-i].name}
		cfg.KeyCost = 4
		cfg.IOTimeout = 2 * time.Second

		a, err := New(cfg, &logger)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		nodes[i].app = a
		nodes[i].addr = cfg.ListenAddress()
		go func(n node) { done <- n.app.Serve(ctx, n.lst) }(nodes[i])
	}
	t.Cleanup(func() {
		cancel()
		for range nodes {
			if err := <-done; err != nil {
				t.Errorf("Serve: %v", err)
			}
		}
	})
	return nodes[0], nodes[1]
}

// exchange sends cmd to n and returns the contents of the replies.
func exchange(t *testing.T, n node, cmd proto.Command) []string {
	t.Helper()
	payload, err := proto.Encode(cmd)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	d := tcp.Dialer{Timeout: 3 * time.Second}
	reply, err := d.Exchange(context.Background(), n.addr, payload)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	cmds, err := proto.DecodeBatch(reply)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	var out []string
	for _, c := range cmds {
		out = append(out, c.Param(proto.ParamContent))
	}
	return out
}

// waitFor polls n on behalf of nick until a reply containing want arrives.
func waitFor(t *testing.T, n node, nick, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var seen []string
	for time.Now().Before(deadline) {
		for _, got := range exchange(t, n, proto.Command{Author: nick, Recipient: n.name, Identifier: proto.CmdHelp}) {
			if strings.Contains(got, want) {
				return
			}
			seen = append(seen, got)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s never received %q; saw %q", nick, want, seen)
}

func TestChannelAcrossServers(t *testing.T) {
	a, b := startNetwork(t)
	ctx := context.Background()

	join := func(nick string) proto.Command {
		return proto.Command{Author: nick, Recipient: proto.Broadcast, Identifier: proto.CmdJoin,
			Parameters: map[string]string{proto.ParamChannel: "general", proto.ParamKey: "k", proto.ParamHost: ""}}
	}

	got := exchange(t, a, join("alice"))
	if len(got) != 1 || got[0] != "joined general" {
		t.Fatalf("unexpected join reply %q", got)
	}

	// The announcement reaches b, which keeps a stub.
	deadline := time.Now().Add(5 * time.Second)
	for {
		ch, found, err := b.app.Server().Directory().FindChannel(ctx, "general")
		if err != nil {
			t.Fatalf("FindChannel: %v", err)
		}
		if found {
			if ch.Host != a.name || len(ch.Members) != 0 {
				t.Fatalf("unexpected stub on b: %+v", ch)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("channel never announced to b")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// bob joins through b; the host answers through b.
	exchange(t, b, join("bob"))
	waitFor(t, b, "bob", "joined general")

	ch, _, err := a.app.Server().Directory().FindChannel(ctx, "general")
	if err != nil || !ch.HasMember("bob") {
		t.Fatalf("bob is not a member on the host: %+v err=%v", ch, err)
	}

	exchange(t, a, proto.Command{Author: "alice", Recipient: "general", Identifier: proto.CmdMsg,
		Parameters: map[string]string{proto.ParamContent: "hello: bob"}})
	waitFor(t, b, "bob", "hello: bob")

	exchange(t, b, proto.Command{Author: "bob", Recipient: proto.Broadcast, Identifier: proto.CmdNames,
		Parameters: map[string]string{proto.ParamChannel: "general"}})
	waitFor(t, b, "bob", `"general": alice - bob`)
}
