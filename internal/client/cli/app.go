package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/clipkeeper/internal/client/client"
	"github.com/dmitrijs2005/clipkeeper/internal/client/config"
	"github.com/dmitrijs2005/clipkeeper/internal/client/services"
	"github.com/dmitrijs2005/clipkeeper/internal/client/state"
	"github.com/dmitrijs2005/clipkeeper/internal/client/store"
	"github.com/dmitrijs2005/clipkeeper/internal/common"
	"github.com/dmitrijs2005/clipkeeper/internal/filex"
	"github.com/dmitrijs2005/clipkeeper/internal/logging"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror/postgres"
	"github.com/dmitrijs2005/clipkeeper/internal/reactive"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// App owns the device services for one command invocation.
type App struct {
	config      *config.Config
	logger      logging.Logger
	store       *store.Store
	mirror      mirror.Mirror
	coordinator *services.Coordinator
	importer    *services.Importer
	syncState   *state.SyncState
	out         io.Writer
	closers     []io.Closer

	mu   sync.Mutex
	mode Mode
}

// NewApp opens the local store and connects the configured mirror.
func NewApp(ctx context.Context, c *config.Config, l logging.Logger) (*App, error) {
	opts := []store.Option{store.WithLogger(l.With("module", "store"))}
	if c.DeviceID != "" {
		opts = append(opts, store.WithDeviceID(c.DeviceID))
	}
	if err := filex.EnsureParentDir(c.DBPath); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, c.DBPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	app := &App{config: c, logger: l, store: st, out: os.Stdout, closers: []io.Closer{st}}

	m, err := app.newMirror(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.mirror = mirror.WithTimeout(m, c.RemoteTimeout)

	app.syncState = state.NewSyncState()
	app.coordinator = services.NewCoordinator(st, app.mirror, l,
		services.WithSyncState(app.syncState),
		services.WithRetryPolicy(mirror.RetryPolicy{Retries: c.RetryAttempts, Base: c.RetryBase}),
	)
	app.importer = services.NewImporter(st, l)
	return app, nil
}

func (app *App) newMirror(ctx context.Context) (mirror.Mirror, error) {
	c := app.config
	switch c.Mirror {
	case config.MirrorMemory:
		return mirror.NewMemory().ForAccount(c.AccountID), nil
	case config.MirrorGRPC:
		gc, err := client.NewGRPCClient(c.ServerEndpointAddr, c.AccessToken, app.store.DeviceID())
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, gc)
		return gc, nil
	case config.MirrorPostgres:
		db, err := postgres.Open(c.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, db)
		b := postgres.NewBackend(db)
		if err := b.RunMigrations(ctx); err != nil {
			return nil, err
		}
		return b.ForAccount(c.AccountID), nil
	}
	return nil, fmt.Errorf("unknown mirror %q", c.Mirror)
}

// Close releases the mirror connection and the local store.
func (app *App) Close() error {
	if app.syncState != nil {
		app.syncState.Close()
		app.syncState = nil
	}
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i].Close())
	}
	app.closers = nil
	return errors.Join(errs...)
}

func (app *App) setMode(ctx context.Context, mode Mode) {
	app.mu.Lock()
	changed := app.mode != mode
	app.mode = mode
	app.mu.Unlock()

	if changed {
		app.logger.Info(ctx, "switched mode", "mode", mode)
	}
}

// Mode reports whether the last sync pass reached the mirror.
func (app *App) Mode() Mode {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.mode
}

// watchSyncState tracks online/offline mode from sync outcomes until ctx
// is done.
func (app *App) watchSyncState(ctx context.Context) (stop func()) {
	stopStatus := app.syncState.Status.Observe(ctx, func(s reactive.Snapshot[state.SyncStatus]) {
		if s.Value == state.StatusIdle && s.Present {
			app.setMode(ctx, ModeOnline)
		}
	})
	stopErrors := app.syncState.LastError.Observe(ctx, func(s reactive.Snapshot[error]) {
		if !s.Present {
			return
		}
		if errors.Is(s.Value, common.ErrNetworkUnavailable) {
			app.setMode(ctx, ModeOffline)
		}
		app.logger.Warn(ctx, "sync failed", "error", s.Value)
	})
	return func() {
		stopStatus()
		stopErrors()
	}
}
