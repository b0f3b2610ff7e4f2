package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vovakirdan/meshchat/internal/proto"
)

func noop(context.Context, proto.Command) error { return nil }

func TestRegistryRejectsDuplicate(t *testing.T) {
	reg := NewRegistry[proto.Command]()
	if err := reg.Register(proto.CmdJoin, noop); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	err := reg.Register(proto.CmdJoin, noop)
	if !errors.Is(err, ErrDuplicateCommand) {
		t.Fatalf("expected ErrDuplicateCommand, got %v", err)
	}
	var ce *CoreError
	if !errors.As(err, &ce) || ce.Code != ErrCodeDuplicate {
		t.Fatalf("expected duplicate_command CoreError, got %#v", err)
	}
}

func TestRegistryRejectsUnknownIdentifier(t *testing.T) {
	reg := NewRegistry[proto.Command]()
	if err := reg.Register("quit", noop); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if reg.Has("quit") {
		t.Fatalf("unknown identifier must not be registered")
	}
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry[proto.Command]()
	for _, id := range []string{proto.CmdNames, proto.CmdAway, proto.CmdMsg} {
		if err := reg.Register(id, noop); err != nil {
			t.Fatalf("Register(%q): %v", id, err)
		}
	}
	if !reg.Has(proto.CmdMsg) || reg.Has(proto.CmdJoin) {
		t.Fatalf("unexpected Has results")
	}
	if _, ok := reg.Resolve(proto.CmdAway); !ok {
		t.Fatalf("expected away to resolve")
	}
	if diff := cmp.Diff([]string{"away", "msg", "names"}, reg.Identifiers()); diff != "" {
		t.Errorf("identifiers (-want +got):\n%s", diff)
	}
}

func TestDispatcherRoutesByIdentifier(t *testing.T) {
	reg := NewRegistry[proto.Command]()
	var handled []string
	record := func(_ context.Context, cmd proto.Command) error {
		handled = append(handled, cmd.Identifier)
		return nil
	}
	for _, id := range proto.Identifiers {
		if err := reg.Register(id, record); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	var invalid []string
	d := NewDispatcher(reg, proto.DecodeString, func(c proto.Command) string { return c.Identifier },
		func(_ context.Context, cmd proto.Command) error {
			invalid = append(invalid, cmd.Identifier)
			return nil
		})

	ctx := context.Background()
	for _, raw := range []string{
		`command:alice:*:join:{"channel":"general"}:1`,
		`command:alice:*:quit:{}:1`,
		`command:alice:bob:msg:{"content":"hi"}:1`,
	} {
		if _, err := d.Handle(ctx, raw); err != nil {
			t.Fatalf("Handle(%q): %v", raw, err)
		}
	}

	if diff := cmp.Diff([]string{"join", "msg"}, handled); diff != "" {
		t.Errorf("handled (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"quit"}, invalid); diff != "" {
		t.Errorf("invalid (-want +got):\n%s", diff)
	}
}

func TestDispatcherReportsDecodeAndHandlerErrors(t *testing.T) {
	reg := NewRegistry[proto.Command]()
	boom := errors.New("boom")
	if err := reg.Register(proto.CmdList, func(context.Context, proto.Command) error { return boom }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d := NewDispatcher(reg, proto.DecodeString, func(c proto.Command) string { return c.Identifier }, nil)

	if _, err := d.Handle(context.Background(), "not a command"); !errors.Is(err, proto.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	cmd, err := d.Handle(context.Background(), `command:alice:*:list:{}:1`)
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if cmd.Author != "alice" {
		t.Fatalf("expected decoded command to be returned, got %+v", cmd)
	}
	if _, err := d.Handle(context.Background(), `command:alice:*:quit:{}:1`); err != nil {
		t.Fatalf("unknown command without invalid handler should be ignored, got %v", err)
	}
}

func TestHelpTableFollowsRegistry(t *testing.T) {
	reg := NewRegistry[proto.Command]()
	for _, id := range []string{proto.CmdJoin, proto.CmdHelp} {
		if err := reg.Register(id, noop); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	entries := HelpTable(reg)
	if len(entries) != 2 || entries[0].Identifier != proto.CmdHelp || entries[1].Identifier != proto.CmdJoin {
		t.Fatalf("unexpected help entries: %+v", entries)
	}
	text := FormatHelp(entries)
	if !strings.Contains(text, "/join <channel> [key]") || strings.Contains(text, "/names") {
		t.Fatalf("unexpected help text:\n%s", text)
	}
}
