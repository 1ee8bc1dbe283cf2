package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	httptransport "github.com/dumaterial/materials-api/internal/api/http"
	"github.com/dumaterial/materials-api/internal/api/http/handlers"
	"github.com/dumaterial/materials-api/internal/auth"
	"github.com/dumaterial/materials-api/internal/cache"
	"github.com/dumaterial/materials-api/internal/config"
	"github.com/dumaterial/materials-api/internal/domain"
	"github.com/dumaterial/materials-api/internal/events"
	"github.com/dumaterial/materials-api/internal/media"
	"github.com/dumaterial/materials-api/internal/observability"
	"github.com/dumaterial/materials-api/internal/persistence"
	"github.com/dumaterial/materials-api/internal/repository"
	"github.com/dumaterial/materials-api/internal/service"
	"github.com/dumaterial/materials-api/internal/worker"
)

const (
	shutdownTimeout = 10 * time.Second
	cleanupWorkers  = 2
	cleanupBuffer   = 128
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Action: func(c *cli.Context) error {
			return serve(c.Context)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	shutdownTracing, err := observability.InitTracing(ctx, cfg.App, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, cfg.Postgres.DSN, logger); err != nil {
			return err
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	dispatcher := events.NewInMemoryDispatcher()
	authDeps := service.AuthDependencies{Events: dispatcher, Metrics: metrics, Logger: logger}

	adminAuth, err := newRealmService(cfg.Auth, domain.RoleAdmin, pg, redis, authDeps)
	if err != nil {
		return err
	}
	userAuth, err := newRealmService(cfg.Auth, domain.RoleUser, pg, redis, authDeps)
	if err != nil {
		return err
	}

	store, err := newMediaStore(ctx, cfg.Media, logger)
	if err != nil {
		return err
	}
	materialCache, err := cache.NewMaterialCache(cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer materialCache.Close() //nolint:errcheck

	cleanup := worker.NewMediaCleanup(store, logger, cleanupWorkers, cleanupBuffer)
	cleanup.OnDone(metrics.RecordMediaCleanup)
	worker.Start(ctx, dispatcher, worker.NewAuditLogger(logger), cleanup)
	defer cleanup.Stop()

	materialRepo := repository.NewMaterialRepository(pg.Pool)
	materials := service.NewMaterialService(service.MaterialDependencies{
		Materials: materialRepo,
		Media:     store,
		Cache:     materialCache,
		Events:    dispatcher,
		Metrics:   metrics,
		Logger:    logger,
	})
	purchases := service.NewPurchaseService(repository.NewPurchaseRepository(pg.Pool), materialRepo, dispatcher, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    cfg.App.BodyLimitMB * 1024 * 1024,
		Immutable:    true,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.CORS, cfg.App.RequestTimeout())

	cookie := handlers.CookieOptions{Name: cfg.Auth.CookieName, Secure: cfg.Auth.CookieSecure}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Admin:     realmRoutes(adminAuth, cookie, logger, metrics),
		User:      realmRoutes(userAuth, cookie, logger, metrics),
		Materials: handlers.NewMaterialsHandler(materials, int64(cfg.Media.MaxUploadSizeMB)*1024*1024),
		Purchases: handlers.NewPurchasesHandler(purchases),
		Metrics:   metrics,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		errCh <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("fiber listen: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down", zap.Error(context.Cause(ctx)))
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newRealmService(cfg config.AuthConfig, role domain.Role, pg *persistence.Postgres, redis *persistence.Redis, deps service.AuthDependencies) (*service.AuthService, error) {
	principals, err := repository.NewPrincipalRepository(pg.Pool, role)
	if err != nil {
		return nil, err
	}
	realm, err := service.NewRealm(cfg, role, principals, auth.NewRedisRevocationList(redis.Client, role))
	if err != nil {
		return nil, err
	}
	return service.NewAuthService(realm, deps), nil
}

func realmRoutes(svc *service.AuthService, cookie handlers.CookieOptions, logger *zap.Logger, metrics *observability.Metrics) httptransport.RealmRoutes {
	opts := []auth.MiddlewareOption{auth.WithRejectionRecorder(metrics)}
	if revocations := svc.Revocations(); revocations != nil {
		opts = append(opts, auth.WithRevocationList(revocations))
	}
	return httptransport.RealmRoutes{
		Auth:  handlers.NewRealmAuthHandler(svc, cookie),
		Guard: auth.NewRealmMiddleware(svc.Tokens(), logger, opts...),
	}
}

// newMediaStore falls back to a store that rejects uploads when no bucket is
// configured, so the rest of the API still serves.
func newMediaStore(ctx context.Context, cfg config.MediaConfig, logger *zap.Logger) (media.Store, error) {
	if cfg.Bucket == "" {
		logger.Warn("media bucket not configured; uploads disabled")
		return media.Unconfigured{}, nil
	}
	return media.NewS3Store(ctx, cfg, logger)
}
