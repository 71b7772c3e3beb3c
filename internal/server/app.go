// Package server assembles and runs the calsync daemon: storage, backends,
// the engine services, the OAuth callback surface, the gRPC endpoint and
// the periodic credential refresh.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/calsync/internal/archive"
	"github.com/dmitrijs2005/calsync/internal/authflow"
	"github.com/dmitrijs2005/calsync/internal/callback"
	"github.com/dmitrijs2005/calsync/internal/config"
	"github.com/dmitrijs2005/calsync/internal/dbx"
	"github.com/dmitrijs2005/calsync/internal/fetcher"
	"github.com/dmitrijs2005/calsync/internal/logging"
	"github.com/dmitrijs2005/calsync/internal/registry"
	"github.com/dmitrijs2005/calsync/internal/repositories/memstore"
	"github.com/dmitrijs2005/calsync/internal/repositories/repomanager"
	"github.com/dmitrijs2005/calsync/internal/resolution"
	"github.com/dmitrijs2005/calsync/internal/syncer"
	"github.com/dmitrijs2005/calsync/internal/telemetry"
	"github.com/dmitrijs2005/calsync/internal/tokens"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/calsync/internal/server/grpc"
)

const serviceName = "calsyncd"

type App struct {
	config *config.Config
	logger logging.Logger

	db    *sql.DB
	store dbx.Store
	repos repomanager.RepositoryManager

	registry    *registry.Registry
	tokens      *tokens.Manager
	coordinator *authflow.Coordinator
	callback    *callback.Server
	grpc        *gs.GRPCServer

	shutdownTelemetry func(context.Context) error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogFormat, c.LogLevel)

	app := &App{config: c, logger: logger}

	shutdown, err := telemetry.Setup(ctx, serviceName, c.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry init error: %w", err)
	}
	app.shutdownTelemetry = shutdown

	if err := app.initStorage(ctx); err != nil {
		_ = app.close(ctx)
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := app.initServices(ctx); err != nil {
		_ = app.close(ctx)
		return nil, err
	}

	return app, nil
}

// initStorage opens PostgreSQL and applies migrations, or falls back to the
// in-memory store when no DSN is configured.
func (app *App) initStorage(ctx context.Context) error {
	if app.config.DatabaseDSN == "" {
		app.logger.Warn(ctx, "no database configured, state is kept in memory")
		m := memstore.New()
		app.store, app.repos = m, m
		return nil
	}

	db, err := repomanager.Open(ctx, app.config.DatabaseDSN)
	if err != nil {
		return err
	}
	app.db = db

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return err
	}
	app.store, app.repos = dbx.NewSQLStore(db), repos
	return nil
}

func (app *App) initServices(ctx context.Context) error {
	c := app.config

	portalClient, err := newPortalClient(c)
	if err != nil {
		return err
	}

	regOpts, err := registryOptions(c, portalClient)
	if err != nil {
		return err
	}
	app.registry = registry.New(app.store, app.repos, app.logger, regOpts...)

	b, err := newBackends(c, portalClient, app.registry)
	if err != nil {
		return err
	}
	if b.appointments == nil {
		app.logger.Warn(ctx, "no portal configured, appointments are unavailable")
		b.appointments = noAppointments{}
	}

	app.tokens = tokens.New(app.registry, b.refresher, app.logger,
		tokens.WithLookahead(c.RefreshLookahead),
		tokens.WithConcurrency(c.FetchConcurrency),
	)

	f := fetcher.New(app.registry, b.events, app.logger,
		fetcher.WithTokens(app.tokens),
		fetcher.WithConcurrency(c.FetchConcurrency),
	)

	arch, err := newArchiver(ctx, c)
	if err != nil {
		return fmt.Errorf("archive init error: %w", err)
	}
	resOpts := []resolution.Option{resolution.WithArchiver(arch)}
	if b.reporter != nil {
		resOpts = append(resOpts, resolution.WithReporter(b.reporter))
	}
	resolver := resolution.New(app.store, app.repos, app.logger, resOpts...)

	syncSvc := syncer.New(app.tokens, f, b.appointments, app.store, app.repos, app.logger)

	app.callback = callback.NewServer(c.CallbackAddr, app.logger)
	flowOpts := []authflow.Option{
		authflow.WithTokens(app.tokens),
		authflow.WithTimeout(c.AuthorizationTimeout),
		authflow.WithRefreshHint(app.reloadIntegrations),
	}
	if c.BackendMode == config.ModePortal {
		// the portal registers the integration itself and posts it back
		flowOpts = append(flowOpts, authflow.WithRegisteredIntegrations())
	}
	app.coordinator = authflow.New(b.authorizer, app.callback, app.registry, app.logger, flowOpts...)

	app.grpc = gs.NewGRPCServer(c.EndpointAddrGRPC, app.logger, gs.Services{
		Integrations:   app.registry,
		Refresher:      app.tokens,
		Authorizations: app.coordinator,
		Syncer:         syncSvc,
		Resolver:       resolver,
	}, c.SecretKey)

	return nil
}

func newArchiver(ctx context.Context, c *config.Config) (archive.Archiver, error) {
	if !c.ArchiveEnabled {
		return archive.Nop{}, nil
	}
	return archive.NewS3Archiver(ctx, archive.Options{
		Region:    c.S3Region,
		Endpoint:  c.S3BaseEndpoint,
		AccessKey: c.S3RootUser,
		SecretKey: c.S3RootPassword,
		Bucket:    c.S3Bucket,
	})
}

func (app *App) reloadIntegrations(ctx context.Context, userID string) {
	if _, err := app.registry.Reload(ctx, userID); err != nil {
		app.logger.Warn(ctx, "reload after refresh hint failed", "user_id", userID, "error", err)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// refreshLoop refreshes every due credential on each tick. Per-integration
// timers normally get there first; the loop catches anything they missed.
func (app *App) refreshLoop(ctx context.Context) error {
	if app.config.RefreshTickInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(app.config.RefreshTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			report, err := app.tokens.RefreshAllDue(ctx, now)
			if err != nil {
				app.logger.Warn(ctx, "periodic refresh incomplete", "refreshed", len(report.Refreshed), "failed", len(report.Failed), "error", err)
			} else if len(report.Refreshed) > 0 {
				app.logger.Info(ctx, "periodic refresh", "refreshed", len(report.Refreshed))
			}
		}
	}
}

// Run serves until ctx is cancelled or a signal arrives, then shuts every
// component down.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "mode", app.config.BackendMode)

	app.initSignalHandler(cancelFunc)

	if err := app.tokens.Start(ctx); err != nil {
		return fmt.Errorf("token manager: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.grpc.Run(gctx) })
	g.Go(func() error { return app.callback.Run(gctx) })
	g.Go(func() error { return app.refreshLoop(gctx) })

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, "server stopped", "error", err)
	}

	app.coordinator.CancelAll()
	app.tokens.Close()

	return multierr.Append(err, app.close(context.WithoutCancel(ctx)))
}

func (app *App) close(ctx context.Context) error {
	var errs error
	if app.shutdownTelemetry != nil {
		errs = multierr.Append(errs, app.shutdownTelemetry(ctx))
	}
	if app.db != nil {
		errs = multierr.Append(errs, app.db.Close())
	}
	app.logger.Info(ctx, "App stopped")
	return errs
}
