package client

import (
	"strings"

	"github.com/vovakirdan/meshchat/internal/core"
	"github.com/vovakirdan/meshchat/internal/proto"
)

// commandMarker starts an explicit command in user input.
const commandMarker = "/"

// ParseInput turns one line of user input into a client command. Input
// without a leading "/" is a message to the current channel.
func ParseInput(author, current, line string) (proto.ClientCommand, error) {
	line = strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(line, commandMarker); ok {
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return proto.ClientCommand{Author: author}, nil
		}
		return proto.ClientCommand{
			Author:     author,
			Identifier: strings.ToLower(fields[0]),
			Parameters: fields[1:],
		}, nil
	}

	if current == "" {
		return proto.ClientCommand{}, core.Validationf("not in a channel: use /join <channel> or /msg <target> <words...>")
	}
	return proto.ClientCommand{
		Author:     author,
		Identifier: proto.CmdMsg,
		Parameters: append([]string{current}, strings.Fields(line)...),
	}, nil
}
