package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/meshchat/internal/config"
	"github.com/vovakirdan/meshchat/internal/directory"
	"github.com/vovakirdan/meshchat/internal/router"
	"github.com/vovakirdan/meshchat/internal/server"
	"github.com/vovakirdan/meshchat/internal/store"
	"github.com/vovakirdan/meshchat/internal/store/memory"
	"github.com/vovakirdan/meshchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/meshchat/internal/transport/http"
	"github.com/vovakirdan/meshchat/internal/transport/tcp"
)

// App wires together the server role, its workers and the status API.
type App struct {
	server          *server.Server
	receiver        *tcp.Receiver
	status          *stdhttp.Server
	listenAddr      string
	shutdownTimeout time.Duration
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	peers, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("store initialized")

	names := make([]string, len(peers))
	for i, p := range peers {
		names[i] = p.Name
	}
	dir := directory.New(st, logger)
	dialer := tcp.Dialer{Timeout: cfg.IOTimeout, BufferSize: cfg.BufferSize}
	rt := router.New(router.Config{
		Self:        cfg.Name,
		Peers:       names,
		Resolve:     cfg.Resolver(peers),
		MaxHops:     cfg.MaxHops,
		OutboxLimit: cfg.OutboxLimit,
	}, dir, dialer, logger)

	srv, err := server.New(server.Config{
		QueueSize: cfg.QueueSize,
		// Leave the client time to read the reply within its own timeout.
		HandleTimeout: cfg.IOTimeout * 4 / 5,
		KeyCost:       cfg.KeyCost,
	}, dir, rt, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{
		server:          srv,
		receiver:        tcp.NewReceiver(srv.Receive, cfg.BufferSize, cfg.IOTimeout, logger),
		listenAddr:      cfg.ListenAddress(),
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}
	if cfg.StatusAddr != "" {
		a.status = transporthttp.NewServer(srv, cfg.StatusAddr, logger)
	}
	return a, nil
}

func openStore(path string) (store.Store, error) {
	if path == "" || path == ":memory:" {
		return memory.New(), nil
	}
	return sqlite.New(path)
}

// Server returns the server context object.
func (a *App) Server() *server.Server { return a.server }

// Run binds the listener, starts the receive and handler workers and the
// status API, and blocks until ctx is cancelled or a worker fails.
func (a *App) Run(ctx context.Context) error {
	var lc net.ListenConfig
	lst, err := lc.Listen(ctx, "tcp", a.listenAddr)
	if err != nil {
		a.cleanup()
		return fmt.Errorf("listen on %s: %w", a.listenAddr, err)
	}
	return a.Serve(ctx, lst)
}

// Serve runs the workers on an existing listener. The store is closed
// when Serve returns.
func (a *App) Serve(ctx context.Context, lst net.Listener) error {
	defer a.cleanup()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.log.Info().Str("server", a.server.Name()).Str("addr", lst.Addr().String()).
		Strs("peers", a.server.Router().Peers()).Msg("server listening")

	g := taskgroup.New(taskgroup.Trigger(cancel))
	g.Go(func() error { return a.server.Run(ctx) })
	g.Go(func() error { return a.receiver.Serve(ctx, lst) })

	if a.status != nil {
		g.Go(func() error {
			a.log.Info().Str("addr", a.status.Addr).Msg("status api listening")
			if err := a.status.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				return fmt.Errorf("status api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
			defer cancel()

			a.log.Info().Msg("shutting down status api")
			return a.status.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	a.log.Info().Str("server", a.server.Name()).Msg("server stopped")
	return err
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
