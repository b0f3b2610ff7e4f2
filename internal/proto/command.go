package proto

import "maps"

// Broadcast is the recipient wildcard addressing every configured peer.
const Broadcast = "*"

// Command identifiers known to both roles.
const (
	CmdAway   = "away"
	CmdHelp   = "help"
	CmdInvite = "invite"
	CmdJoin   = "join"
	CmdList   = "list"
	CmdMsg    = "msg"
	CmdNames  = "names"
)

// Identifiers lists every known command identifier in sorted order.
var Identifiers = []string{CmdAway, CmdHelp, CmdInvite, CmdJoin, CmdList, CmdMsg, CmdNames}

// IsKnown reports whether id is one of the fixed command identifiers.
func IsKnown(id string) bool {
	for _, known := range Identifiers {
		if known == id {
			return true
		}
	}
	return false
}

// Parameter keys carried in Command.Parameters.
const (
	ParamChannel = "channel"
	ParamKey     = "key"
	ParamHost    = "host"
	ParamContent = "content"
	ParamMessage = "message"
	// ParamOrigin names the home server of the author. It is set by the
	// first server that forwards a command to a peer.
	ParamOrigin = "origin"
	// ParamHops counts server-to-server forwards of a command.
	ParamHops = "hops"
)

// Command is the structured form of a wire command exchanged between
// clients and servers and between peer servers.
//
// Command values are treated as immutable: With and To return modified
// copies and never touch the receiver's parameter map.
type Command struct {
	Author     string
	Recipient  string
	Identifier string
	Parameters map[string]string
	// Timestamp is the UNIX time assigned at encode time. It is
	// informational only and never used for ordering.
	Timestamp int64
}

// Param returns the named parameter, or "" if absent.
func (c Command) Param(key string) string {
	return c.Parameters[key]
}

// With returns a copy of c with the parameter key set to value.
func (c Command) With(key, value string) Command {
	params := make(map[string]string, len(c.Parameters)+1)
	maps.Copy(params, c.Parameters)
	params[key] = value
	c.Parameters = params
	return c
}

// To returns a copy of c addressed to recipient.
func (c Command) To(recipient string) Command {
	c.Parameters = maps.Clone(c.Parameters)
	c.Recipient = recipient
	return c
}

// ClientCommand is a command as typed by a user: the parameters are still
// positional and the recipient is not resolved yet.
type ClientCommand struct {
	Author     string
	Identifier string
	Parameters []string
}
