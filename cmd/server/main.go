package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/meshchat/internal/app"
	"github.com/vovakirdan/meshchat/internal/config"
	"github.com/vovakirdan/meshchat/internal/log"
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
		Use:   "server [name] [peer...]",
		Short: "Run a chat server peered with the given servers",
		Long: "Run a chat server. A numeric name or peer is a port on the listen host;\n" +
			"a peer may also be written <name>@<host:port>.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLog := log.New("info")
			cfg, path, err := config.Load(bootLog, configPath, configPath == "")
			if err != nil {
				return err
			}

			overrides := flags
			if len(args) > 0 {
				overrides.Name = args[0]
				overrides.Peers = args[1:]
			}
			cfg.UpdateFrom(overrides)

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Msg("configuration loaded")

			application, err := app.New(cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("failed to initialize server")
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info().Str("name", cfg.Name).Str("addr", cfg.ListenAddress()).Msg("starting meshchat server")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "path to the config file (default ./config.yaml)")
	f.StringVar(&flags.ListenHost, "listen-host", "", "host that numeric server names resolve to")
	f.StringVar(&flags.ListenAddr, "listen-addr", "", "listen address, overrides the one derived from the name")
	f.StringVar(&flags.DatabasePath, "db", "", `SQLite database path, ":memory:" for an in-memory store`)
	f.StringVar(&flags.StatusAddr, "status-addr", "", "HTTP status API address, empty disables it")
	f.StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	f.IntVar(&flags.BufferSize, "buffer-size", 0, "TCP read buffer size")
	f.DurationVar(&flags.IOTimeout, "io-timeout", 0, fmt.Sprintf("connect/send/receive timeout (default %s)", 5*time.Second))
	return cmd
}
