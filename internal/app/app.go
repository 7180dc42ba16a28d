package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatdispatch/internal/auth"
	"github.com/vovakirdan/chatdispatch/internal/config"
	"github.com/vovakirdan/chatdispatch/internal/core"
	"github.com/vovakirdan/chatdispatch/internal/store"
	"github.com/vovakirdan/chatdispatch/internal/store/memory"
	"github.com/vovakirdan/chatdispatch/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/chatdispatch/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.HistoryStore
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	history, err := newHistoryStore(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("init history store: %w", err)
	}
	logger.Info().
		Str("backend", cfg.History.Backend).
		Int("scrollback_cap", cfg.History.ScrollbackCap).
		Int("max_messages", cfg.History.MaxMessages).
		Dur("retention", cfg.History.Retention).
		Msg("history store initialized")

	var authService *auth.Service
	if cfg.JWT.Secret != "" {
		authService = auth.NewService(&auth.JWTConfig{
			Secret: []byte(cfg.JWT.Secret),
			Issuer: cfg.JWT.Issuer,
			TTL:    cfg.JWT.TTL,
		})
	} else {
		logger.Info().Msg("jwt secret not set, upload tokens disabled")
	}

	fanout := core.NewFanout(logger)
	hub := core.NewHub(history, fanout, core.Options{
		Rooms:         cfg.Rooms.Names,
		DefaultRooms:  cfg.Rooms.Default,
		PruneInterval: cfg.History.PruneInterval,
		Logger:        logger,
	})
	server := transporthttp.NewServer(hub, fanout, authService, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           history,
		log:             logger,
	}, nil
}

func newHistoryStore(cfg config.HistoryConfig) (store.HistoryStore, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return sqlite.New(cfg.SQLitePath, cfg.Policy)
	case config.BackendMemory, "":
		return memory.New(cfg.Policy), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopHub()
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		err := a.server.Shutdown(shutdownCtx)
		stopHub()
		if err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the history store.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
