package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/roomchat-server/internal/auth"
	"github.com/vovakirdan/roomchat-server/internal/bus"
	"github.com/vovakirdan/roomchat-server/internal/config"
	"github.com/vovakirdan/roomchat-server/internal/core"
	"github.com/vovakirdan/roomchat-server/internal/store"
	"github.com/vovakirdan/roomchat-server/internal/store/mongo"
	"github.com/vovakirdan/roomchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/roomchat-server/internal/transport/http"
)

const connectTimeout = 10 * time.Second

// App wires together storage, the bus, the relay and the HTTP transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	relay           *core.Relay
	store           store.Store
	bus             bus.Bus
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	b, err := openBus(ctx, cfg.Bus, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
		TTL:      cfg.Auth.TokenTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	relay := core.NewRelay(
		core.NewRegistry(),
		core.NewHistory(st),
		core.NewBroadcaster(b, cfg.Bus.ChannelPrefix),
		core.Options{
			HistoryLimit: cfg.HistoryLimit,
			AvatarURL:    cfg.AvatarURL,
			SendBuffer:   cfg.SendBuffer,
		},
		logger,
	)

	return &App{
		server:          transporthttp.NewServer(relay, authService, cfg, logger),
		shutdownTimeout: cfg.ShutdownTimeout,
		relay:           relay,
		store:           st,
		bus:             b,
		log:             logger,
	}, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zerolog.Logger) (store.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.Driver {
	case config.StoreSQLite:
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("migrate sqlite store: %w", err)
		}
		logger.Info().Str("driver", cfg.Driver).Str("db_path", cfg.SQLitePath).Msg("store initialized")
		return st, nil
	case config.StoreMongo:
		st, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("init mongo store: %w", err)
		}
		if err := st.EnsureIndexes(ctx); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		logger.Info().Str("driver", cfg.Driver).Str("database", cfg.MongoDatabase).Msg("store initialized")
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openBus(ctx context.Context, cfg config.BusConfig, logger *zerolog.Logger) (bus.Bus, error) {
	switch cfg.Driver {
	case config.BusMemory:
		logger.Info().Str("driver", cfg.Driver).Msg("bus initialized")
		return bus.NewMemoryBus(), nil
	case config.BusRedis:
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		b, err := bus.NewRedisBus(ctx, bus.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init redis bus: %w", err)
		}
		logger.Info().Str("driver", cfg.Driver).Str("addr", cfg.RedisAddr).Msg("bus initialized")
		return b, nil
	case config.BusNATS:
		b, err := bus.NewNATSBus(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("init nats bus: %w", err)
		}
		logger.Info().Str("driver", cfg.Driver).Str("url", cfg.NATSURL).Msg("bus initialized")
		return b, nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// cleanup closes the bus before the store so no handler writes after the store is gone.
func (a *App) cleanup() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close bus")
		} else {
			a.log.Info().Msg("bus closed")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
