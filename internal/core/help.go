package core

import (
	"fmt"
	"strings"

	"github.com/vovakirdan/meshchat/internal/proto"
)

// HelpEntry documents one command for the help listing.
type HelpEntry struct {
	Identifier  string
	Usage       string
	Description string
}

var helpTable = map[string]HelpEntry{
	proto.CmdAway:   {proto.CmdAway, "/away [message...]", "Indicate to others that you are unreachable. Run again to come back."},
	proto.CmdHelp:   {proto.CmdHelp, "/help", "Display the list of available commands."},
	proto.CmdInvite: {proto.CmdInvite, "/invite <user> <channel>", "Invite someone to a channel you have joined."},
	proto.CmdJoin:   {proto.CmdJoin, "/join <channel> [key]", "Join a channel by name, creating it if needed. A key can optionally be passed."},
	proto.CmdList:   {proto.CmdList, "/list", "Display the list of channels on this network."},
	proto.CmdMsg:    {proto.CmdMsg, "/msg <target> <words...>", "Send a message to someone or to a channel."},
	proto.CmdNames:  {proto.CmdNames, "/names [channel]", "Display the users of a channel, or of every channel."},
}

// HelpTable returns the help entries for every identifier registered in r.
func HelpTable[C any](r *Registry[C]) []HelpEntry {
	ids := r.Identifiers()
	entries := make([]HelpEntry, 0, len(ids))
	for _, id := range ids {
		entry, ok := helpTable[id]
		if !ok {
			entry = HelpEntry{Identifier: id, Usage: "/" + id}
		}
		entries = append(entries, entry)
	}
	return entries
}

// FormatHelp renders entries as the text shown by the help command.
func FormatHelp(entries []HelpEntry) string {
	var b strings.Builder
	b.WriteString("Available commands:\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-26s %s\n", e.Usage, e.Description)
	}
	return b.String()
}

// Usage returns the usage line of identifier.
func Usage(identifier string) string {
	if e, ok := helpTable[identifier]; ok {
		return e.Usage
	}
	return "/" + identifier
}
