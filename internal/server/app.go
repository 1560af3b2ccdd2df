// Package server wires and runs the mirror server: it selects the storage
// backend, applies migrations, serves gRPC and shuts down on signal.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/clipkeeper/internal/logging"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror/objectstore"
	"github.com/dmitrijs2005/clipkeeper/internal/mirror/postgres"
	"github.com/dmitrijs2005/clipkeeper/internal/server/auth"
	"github.com/dmitrijs2005/clipkeeper/internal/server/config"

	gs "github.com/dmitrijs2005/clipkeeper/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	backend mirror.Backend
	db      *sql.DB
}

// NewApp builds the backend selected by c. Postgres migrations are applied
// here so the server never starts against an outdated schema.
func NewApp(ctx context.Context, c *config.Config, l logging.Logger) (*App, error) {
	app := &App{config: c, logger: l}

	switch c.Backend {
	case config.BackendMemory:
		app.backend = mirror.NewMemory()
	case config.BackendPostgres:
		db, err := postgres.Open(c.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		b := postgres.NewBackend(db)
		if err := b.RunMigrations(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db migration error: %w", err)
		}
		app.db = db
		app.backend = b
	case config.BackendS3:
		client, err := objectstore.NewClient(ctx, objectstore.Settings{
			Region:    c.S3Region,
			Endpoint:  c.S3BaseEndpoint,
			AccessKey: c.S3RootUser,
			SecretKey: c.S3RootPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		app.backend = objectstore.NewBackend(client, c.S3Bucket, objectstore.WithPrefix(c.S3Prefix))
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}

	return app, nil
}

// Backend returns the storage backend the server serves.
func (app *App) Backend() mirror.Backend { return app.backend }

// IssueToken signs an access token for accountID with the configured
// secret and validity.
func (app *App) IssueToken(accountID string) (string, error) {
	return auth.GenerateToken(accountID, []byte(app.config.SecretKey), app.config.AccessTokenValidityDuration)
}

func (app *App) initSignalHandler(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancel := app.initSignalHandler(ctx)
	defer cancel()

	app.logger.Info(ctx, "Starting app...", "backend", app.config.Backend)

	s := gs.NewMirrorServer(app.config.EndpointAddrGRPC, app.logger, app.backend, app.config.SecretKey)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Run(ctx)
	})

	err := g.Wait()
	if cerr := app.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// Close releases the database connection, if any.
func (app *App) Close() error {
	if app.db == nil {
		return nil
	}
	err := app.db.Close()
	app.db = nil
	return err
}
