// Package daemon composes the synchronization daemon out of its parts.
package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sancheet230/get-chat/internal/api"
	"github.com/sancheet230/get-chat/internal/bus"
	"github.com/sancheet230/get-chat/internal/config"
	"github.com/sancheet230/get-chat/internal/index"
	"github.com/sancheet230/get-chat/internal/lock"
	"github.com/sancheet230/get-chat/internal/logging"
	"github.com/sancheet230/get-chat/internal/outbox"
	"github.com/sancheet230/get-chat/internal/rest"
	"github.com/sancheet230/get-chat/internal/session"
	"github.com/sancheet230/get-chat/internal/status"
	"github.com/sancheet230/get-chat/internal/store"
	intsync "github.com/sancheet230/get-chat/internal/sync"
	"github.com/sancheet230/get-chat/internal/unread"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	ListenAddr string // optional override for testing; empty = use config
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRESTClient,
			provideTracker,
			provideIndex,
			provideRegistry,
			provideEngine,
			provideAPIServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.Load(session.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(session.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRESTClient(cfg *config.Config) *rest.Client {
	return rest.NewClient(cfg.ServerURL, nil)
}

func provideTracker() *unread.Tracker {
	return unread.NewTracker()
}

func provideIndex() *index.Index {
	return index.New()
}

func provideRegistry(db *store.DB, logger *zap.Logger) *outbox.Registry {
	return outbox.NewRegistry(db, logger)
}

func provideEngine(p Params, cfg *config.Config, db *store.DB, client *rest.Client, tracker *unread.Tracker, ix *index.Index, registry *outbox.Registry, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.New(intsync.Options{
		Profile:      p.Profile,
		PushURL:      cfg.PushURL,
		PollInterval: time.Duration(cfg.PollSeconds) * time.Second,
	}, db, client, tracker, ix, registry, machine, b, logger)
}

func provideAPIServer(p Params, cfg *config.Config, engine *intsync.Engine, db *store.DB, logger *zap.Logger) *api.Server {
	addr := p.ListenAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	return api.NewServer(addr, api.New(engine, db, logger), logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *api.Server, lk *lock.Lock, engine *intsync.Engine, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := engine.Start(ctx); err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				engine.Stop()
				return err
			}
			logger.Info("daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("error shutting down local api", zap.Error(err))
			}
			engine.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
