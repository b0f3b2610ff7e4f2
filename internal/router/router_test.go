package router

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/meshchat/internal/directory"
	"github.com/vovakirdan/meshchat/internal/proto"
	"github.com/vovakirdan/meshchat/internal/store/memory"
)

var errTimeout = errors.New("i/o timeout")

// fakeSender records every payload by address. Addresses listed in slow
// block for delay and then fail.
type fakeSender struct {
	mu    sync.Mutex
	sent  map[string][]proto.Command
	slow  map[string]bool
	delay time.Duration
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string][]proto.Command), slow: make(map[string]bool)}
}

func (f *fakeSender) Send(ctx context.Context, addr string, payload []byte) error {
	cmd, err := proto.Decode(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent[addr] = append(f.sent[addr], cmd)
	slow := f.slow[addr]
	f.mu.Unlock()
	if slow {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
		return errTimeout
	}
	return nil
}

func (f *fakeSender) to(addr string) []proto.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent[addr])
}

func newTestRouter(t *testing.T, peers ...string) (*Router, *directory.Directory, *fakeSender) {
	t.Helper()
	logger := zerolog.Nop()
	dir := directory.New(memory.New(), &logger)
	snd := newFakeSender()
	r := New(Config{
		Self:    "8001",
		Peers:   peers,
		Resolve: func(name string) string { return "localhost:" + name },
	}, dir, snd, &logger)
	return r, dir, snd
}

func TestBroadcastReachesEveryPeerDespiteTimeout(t *testing.T) {
	r, _, snd := newTestRouter(t, "8002", "8003", "8004")
	snd.slow["localhost:8002"] = true
	snd.delay = 300 * time.Millisecond

	cmd := proto.Command{Author: "alice", Recipient: proto.Broadcast, Identifier: proto.CmdList}
	start := time.Now()
	err := r.Send(context.Background(), cmd)
	if !errors.Is(err, errTimeout) {
		t.Fatalf("expected the timeout to be reported, got %v", err)
	}
	for _, peer := range []string{"8002", "8003", "8004"} {
		if got := snd.to("localhost:" + peer); len(got) != 1 {
			t.Errorf("peer %s: expected 1 delivery attempt, got %d", peer, len(got))
		}
	}
	if elapsed := time.Since(start); elapsed > 2*snd.delay {
		t.Errorf("fan-out took %v; peers were not contacted concurrently", elapsed)
	}
}

func TestSendToPeerStampsOriginAndHops(t *testing.T) {
	r, _, snd := newTestRouter(t, "8002")
	ctx := context.Background()

	cmd := proto.Command{Author: "alice", Recipient: "bob", Identifier: proto.CmdMsg,
		Parameters: map[string]string{proto.ParamContent: "hi"}}
	if err := r.SendToPeer(ctx, "8002", cmd); err != nil {
		t.Fatalf("SendToPeer: %v", err)
	}
	got := snd.to("localhost:8002")
	if len(got) != 1 {
		t.Fatalf("expected one command, got %d", len(got))
	}
	want := map[string]string{proto.ParamContent: "hi", proto.ParamOrigin: "8001", proto.ParamHops: "1"}
	if diff := cmp.Diff(want, got[0].Parameters); diff != "" {
		t.Errorf("parameters (-want +got):\n%s", diff)
	}
	if len(cmd.Parameters) != 1 {
		t.Errorf("caller's command was modified: %v", cmd.Parameters)
	}

	// An existing origin is kept and the hop count grows.
	fwd := got[0]
	if err := r.SendToPeer(ctx, "8002", fwd); err != nil {
		t.Fatalf("SendToPeer: %v", err)
	}
	again := snd.to("localhost:8002")[1]
	if again.Param(proto.ParamOrigin) != "8001" || again.Param(proto.ParamHops) != "2" {
		t.Errorf("unexpected forwarded params: %v", again.Parameters)
	}
}

func TestSendToPeerHopLimit(t *testing.T) {
	r, _, snd := newTestRouter(t, "8002")
	cmd := proto.Command{Author: "alice", Recipient: "bob", Identifier: proto.CmdMsg}.
		With(proto.ParamHops, "8")
	if err := r.SendToPeer(context.Background(), "8002", cmd); !errors.Is(err, ErrHopLimit) {
		t.Fatalf("expected ErrHopLimit, got %v", err)
	}
	if n := len(snd.to("localhost:8002")); n != 0 {
		t.Fatalf("expected no send, got %d", n)
	}
}

func TestSendResolution(t *testing.T) {
	r, dir, snd := newTestRouter(t, "8002")
	ctx := context.Background()

	mustUser := func(nick, server string) {
		if err := dir.UpsertUser(ctx, directory.User{Nickname: nick, Server: server}); err != nil {
			t.Fatalf("UpsertUser: %v", err)
		}
	}
	mustUser("alice", "8001")
	mustUser("bob", "8002")
	mustUser("carol", "8001")
	for _, ch := range []directory.Channel{
		{Name: "local", Host: "8001", Members: []string{"alice", "bob", "carol"}},
		{Name: "remote", Host: "8002"},
	} {
		if err := dir.UpsertChannel(ctx, ch); err != nil {
			t.Fatalf("UpsertChannel: %v", err)
		}
	}

	msg := func(to string) proto.Command {
		return proto.Command{Author: "alice", Recipient: to, Identifier: proto.CmdMsg,
			Parameters: map[string]string{proto.ParamContent: "hello"}}
	}

	t.Run("local user", func(t *testing.T) {
		if err := r.Send(ctx, msg("carol")); err != nil {
			t.Fatalf("Send: %v", err)
		}
		got := r.Outbox().Drain("carol")
		if len(got) != 1 || got[0].Param(proto.ParamContent) != "hello" {
			t.Fatalf("unexpected outbox: %+v", got)
		}
	})

	t.Run("remote user", func(t *testing.T) {
		before := len(snd.to("localhost:8002"))
		if err := r.Send(ctx, msg("bob")); err != nil {
			t.Fatalf("Send: %v", err)
		}
		if got := snd.to("localhost:8002"); len(got) != before+1 || got[before].Recipient != "bob" {
			t.Fatalf("expected forward to bob's server, got %+v", got)
		}
	})

	t.Run("remote channel goes to host", func(t *testing.T) {
		before := len(snd.to("localhost:8002"))
		if err := r.Send(ctx, msg("remote")); err != nil {
			t.Fatalf("Send: %v", err)
		}
		if got := snd.to("localhost:8002"); len(got) != before+1 || got[before].Recipient != "remote" {
			t.Fatalf("expected forward to host, got %+v", got)
		}
	})

	t.Run("hosted channel reaches members", func(t *testing.T) {
		before := len(snd.to("localhost:8002"))
		if err := r.Send(ctx, msg("local")); err != nil {
			t.Fatalf("Send: %v", err)
		}
		if n := r.Outbox().Pending("alice"); n != 0 {
			t.Errorf("author received its own message %d times", n)
		}
		got := r.Outbox().Drain("carol")
		if len(got) != 1 || got[0].Param(proto.ParamChannel) != "local" {
			t.Errorf("carol: unexpected outbox %+v", got)
		}
		fwd := snd.to("localhost:8002")
		if len(fwd) != before+1 || fwd[before].Recipient != "bob" || fwd[before].Param(proto.ParamChannel) != "local" {
			t.Errorf("bob: unexpected forward %+v", fwd)
		}
	})

	t.Run("broadcast from a peer is not relayed", func(t *testing.T) {
		before := len(snd.to("localhost:8002"))
		relayed := msg(proto.Broadcast).With(proto.ParamOrigin, "8003")
		if err := r.Send(ctx, relayed); err != nil {
			t.Fatalf("Send: %v", err)
		}
		if got := snd.to("localhost:8002"); len(got) != before {
			t.Fatalf("broadcast was relayed again: %+v", got[before:])
		}
	})

	t.Run("unknown recipient", func(t *testing.T) {
		if err := r.Send(ctx, msg("nobody")); !errors.Is(err, ErrUnreachable) {
			t.Fatalf("expected ErrUnreachable, got %v", err)
		}
	})
}

func TestAnnounceAddressesEachPeer(t *testing.T) {
	r, _, snd := newTestRouter(t, "8002", "8003")
	cmd := proto.Command{Author: "alice", Recipient: proto.Broadcast, Identifier: proto.CmdJoin}
	if err := r.Announce(context.Background(), cmd); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	for _, peer := range []string{"8002", "8003"} {
		got := snd.to("localhost:" + peer)
		if len(got) != 1 || got[0].Recipient != peer {
			t.Errorf("peer %s: unexpected commands %+v", peer, got)
		}
	}
}

func TestOutboxLimit(t *testing.T) {
	o := NewOutbox(2)
	for i, content := range []string{"a", "b", "c"} {
		kept := o.Push("alice", proto.Command{Identifier: proto.CmdMsg}.With(proto.ParamContent, content))
		if wantKept := i < 2; kept != wantKept {
			t.Errorf("push %d: kept=%v, want %v", i, kept, wantKept)
		}
	}
	var got []string
	for _, c := range o.Drain("alice") {
		got = append(got, c.Param(proto.ParamContent))
	}
	if diff := cmp.Diff([]string{"b", "c"}, got); diff != "" {
		t.Errorf("drained (-want +got):\n%s", diff)
	}
	if o.Pending("alice") != 0 {
		t.Errorf("expected outbox to be empty after drain")
	}
}
