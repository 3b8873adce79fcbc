package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wiredraw-server/internal/auth"
	"github.com/vovakirdan/wiredraw-server/internal/config"
	"github.com/vovakirdan/wiredraw-server/internal/core"
	applog "github.com/vovakirdan/wiredraw-server/internal/log"
	"github.com/vovakirdan/wiredraw-server/internal/session"
	"github.com/vovakirdan/wiredraw-server/internal/store"
	"github.com/vovakirdan/wiredraw-server/internal/store/breaker"
	"github.com/vovakirdan/wiredraw-server/internal/store/memory"
	"github.com/vovakirdan/wiredraw-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wiredraw-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	sessions        *session.Manager
	store           store.HistoryStore
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	history, err := openHistory(cfg, logger)
	if err != nil {
		return nil, err
	}

	registryLog := applog.Component(logger, "registry")
	broadcasterLog := applog.Component(logger, "broadcaster")
	sessionLog := applog.Component(logger, "session")
	httpLog := applog.Component(logger, "http")

	registry := core.NewRegistry(registryLog)
	broadcaster := core.NewBroadcaster(registry, history, core.BroadcastOptions{
		EchoToSender: cfg.EchoToSender,
		HistoryLimit: cfg.HistoryLimit,
	}, broadcasterLog)

	validator := auth.NewValidator(&auth.JWTConfig{
		Secret:        []byte(cfg.JWTSecret),
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
		RequireExpiry: cfg.JWTRequireExpiry,
	})

	sessions := session.NewManager(broadcaster, validator, SessionOptions(cfg), sessionLog)

	deps := transporthttp.Deps{
		Broadcaster: broadcaster,
		Sessions:    sessions,
		Validator:   validator,
	}
	if cb, ok := history.(*breaker.Store); ok {
		deps.HistoryState = cb.State
	}
	server := transporthttp.NewServer(deps, cfg, httpLog)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		sessions:        sessions,
		store:           history,
		log:             logger,
	}, nil
}

// SessionOptions maps configuration onto per-connection limits.
func SessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		AuthTimeout:         cfg.AuthTimeout,
		IdleTimeout:         cfg.IdleTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		FlushTimeout:        cfg.FlushTimeout,
		SlowConsumerTimeout: cfg.SlowConsumerTimeout,
		OutboundQueue:       cfg.OutboundQueue,
		InboundQueue:        cfg.InboundQueue,
		MessagesPerMinute:   cfg.MessagesPerMinute,
	}
}

func openHistory(cfg *config.Config, logger *zerolog.Logger) (store.HistoryStore, error) {
	var history store.HistoryStore
	switch cfg.HistoryDriver {
	case config.HistoryDriverMemory:
		st, err := memory.New(cfg.HistoryCacheRooms, cfg.HistoryRetention)
		if err != nil {
			return nil, fmt.Errorf("init memory store: %w", err)
		}
		logger.Info().Int("rooms", cfg.HistoryCacheRooms).Msg("in-memory history initialized")
		history = st
	default:
		st, err := sqlite.New(cfg.DatabasePath, cfg.HistoryRetention)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")
		history = st
	}

	if !cfg.BreakerEnabled {
		return history, nil
	}
	breakerLog := applog.Component(logger, "history-breaker")
	return breaker.New(history, breaker.Settings{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, breakerLog), nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("http shutdown")
		}

		// Hijacked websocket connections are not tracked by the http server.
		a.log.Info().Int("active", a.sessions.Active()).Msg("closing websocket sessions")
		if err := a.sessions.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("close sessions: %w", err)
		}
		return nil
	})

	return g.Wait()
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
