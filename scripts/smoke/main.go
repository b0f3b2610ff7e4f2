package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/vovakirdan/meshchat/internal/proto"
	"github.com/vovakirdan/meshchat/internal/transport/tcp"
)

func main() {
	if err := run(); err != nil {
		log.Printf("smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "localhost:8001", "server address")
	user := flag.String("user", "tester", "nickname to send as")
	channel := flag.String("channel", "general", "channel to join and message")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "timeout per exchange")
	flag.Parse()

	d := tcp.Dialer{Timeout: *timeout}
	steps := []proto.Command{
		{Author: *user, Recipient: proto.Broadcast, Identifier: proto.CmdJoin,
			Parameters: map[string]string{proto.ParamChannel: *channel, proto.ParamKey: "", proto.ParamHost: ""}},
		{Author: *user, Recipient: *channel, Identifier: proto.CmdMsg,
			Parameters: map[string]string{proto.ParamContent: *text}},
		{Author: *user, Recipient: proto.Broadcast, Identifier: proto.CmdList},
		{Author: *user, Recipient: proto.Broadcast, Identifier: proto.CmdNames,
			Parameters: map[string]string{proto.ParamChannel: *channel}},
	}

	for _, cmd := range steps {
		payload, err := proto.Encode(cmd)
		if err != nil {
			return fmt.Errorf("encode %s: %w", cmd.Identifier, err)
		}
		fmt.Printf("> %s\n", payload)

		reply, err := d.Exchange(context.Background(), *addr, payload)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.Identifier, err)
		}
		replies, err := proto.DecodeBatch(reply)
		if err != nil {
			log.Printf("smoke: malformed reply: %v", err)
		}
		for _, r := range replies {
			fmt.Printf("< %s: %s\n", r.Author, strings.ReplaceAll(r.Param(proto.ParamContent), "\n", " | "))
		}
	}
	return nil
}
