package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/meshchat/internal/client"
	"github.com/vovakirdan/meshchat/internal/config"
	"github.com/vovakirdan/meshchat/internal/directory"
	"github.com/vovakirdan/meshchat/internal/log"
	"github.com/vovakirdan/meshchat/internal/store/memory"
	"github.com/vovakirdan/meshchat/internal/transport/tcp"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		flags      config.Config
	)

	cmd := &cobra.Command{
		Use:          "client <nickname> <server>",
		Short:        "Chat through a home server",
		Args:         cobra.RangeArgs(0, 2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(nil, configPath, false)
			if err != nil {
				return err
			}
			overrides := flags
			if len(args) > 0 {
				overrides.Nickname = args[0]
			}
			if len(args) > 1 {
				overrides.Name = args[1]
			}
			cfg.UpdateFrom(overrides)

			logger := log.NewTo(os.Stderr, cfg.LogLevel)
			home, err := config.ParsePeer(cfg.Name, cfg.ListenHost)
			if err != nil {
				return err
			}

			c, err := client.New(client.Config{Nickname: cfg.Nickname, Server: home.Name, Addr: home.Addr},
				directory.New(memory.New(), logger),
				tcp.Dialer{Timeout: cfg.IOTimeout, BufferSize: cfg.BufferSize},
				cmd.OutOrStdout(), logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "connected to %s as %s, type /help for commands\n", home.Addr, cfg.Nickname)
			go c.Poll(ctx, cfg.PollInterval)
			return c.Run(ctx, cmd.InOrStdin())
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "path to the config file (default ./config.yaml)")
	f.StringVar(&flags.ListenHost, "host", "", "host that a numeric server name resolves to")
	f.StringVar(&flags.LogLevel, "log-level", "warn", "log level: debug, info, warn, error")
	f.DurationVar(&flags.PollInterval, "poll", 0, "interval between mailbox polls, default 2s")
	return cmd
}
