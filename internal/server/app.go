// Package server initializes and runs the application: configuration,
// storage backends, the extraction client, the cache fan-out and the HTTP
// server, with graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/resumepress/internal/logging"
	"github.com/dmitrijs2005/resumepress/internal/server/cache"
	"github.com/dmitrijs2005/resumepress/internal/server/claims"
	"github.com/dmitrijs2005/resumepress/internal/server/config"
	"github.com/dmitrijs2005/resumepress/internal/server/consistency"
	"github.com/dmitrijs2005/resumepress/internal/server/extraction"
	"github.com/dmitrijs2005/resumepress/internal/server/httpapi"
	"github.com/dmitrijs2005/resumepress/internal/server/jobs"
	"github.com/dmitrijs2005/resumepress/internal/server/ratelimit"
	"github.com/dmitrijs2005/resumepress/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/resumepress/internal/server/storage"
)

// auditRetention keeps audit rows past the widest rate window before the
// sweeper reclaims them.
const auditRetention = 48 * time.Hour

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	tagCache    *cache.TagCache
	repomanager repomanager.RepositoryManager
	handler     *httpapi.Handler
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	gateway, err := storage.NewS3Gateway(ctx, storage.S3Options{
		User:          cfg.S3RootUser,
		Password:      cfg.S3RootPassword,
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		BaseEndpoint:  cfg.S3BaseEndpoint,
		PresignExpiry: cfg.PresignValidityDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	tagCache, err := cache.NewTagCache(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("cache init error: %w", err)
	}

	var bestEffort []cache.Sink
	if cfg.CDNPurgeURL != "" {
		bestEffort = append(bestEffort, cache.NewEdgePurger(cfg.CDNPurgeURL, cfg.CDNToken))
	}
	invalidator := cache.NewInvalidator([]cache.Sink{tagCache}, bestEffort, logger)

	bookmarks := consistency.NewBookmarks(cfg.SecretKey, cfg.BookmarkValidityDuration)
	consistencySvc := consistency.NewService(db, rm, tagCache, invalidator, bookmarks,
		consistency.Options{SnapshotTTL: cfg.SnapshotCacheTTL}, logger)

	extractionClient := extraction.NewHTTPClient(cfg.ExtractionBaseURL, cfg.ExtractionAPIKey)
	jobSvc := jobs.NewService(db, rm, gateway, extractionClient, consistencySvc, jobs.Options{
		MaxAttempts:       cfg.MaxAttempts,
		MaxTransientPolls: cfg.MaxTransientPolls,
		CallbackBaseURL:   cfg.CallbackBaseURL,
	}, logger)

	issuer := claims.NewTokenIssuer([]byte(cfg.SecretKey), cfg.UploadTokenValidityDuration)
	claimSvc := claims.NewCoordinator(db, rm, gateway, issuer, logger)

	guard := ratelimit.NewGuard(db, rm, ratelimit.DefaultLimits(), logger)

	health := []httpapi.HealthCheck{
		{Name: "postgres", Check: db.PingContext},
		{Name: "redis", Check: tagCache.Ping},
	}

	handler := httpapi.NewHandler(claimSvc, jobSvc, consistencySvc, guard,
		[]byte(cfg.WebhookSecret), health, logger)

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		tagCache:    tagCache,
		repomanager: rm,
		handler:     handler,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runSweeper periodically trims audit rows older than the retention window.
// Storage reclamation is housekeeping only; nothing reads rows that old.
func (app *App) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(app.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.repomanager.Audit(app.db).DeleteOlderThan(ctx, time.Now().Add(-auditRetention))
			if err != nil {
				app.logger.Error(ctx, "audit sweep failed", "error", err.Error())
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "audit rows swept", "deleted", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app", "addr", app.config.EndpointAddr)

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:         app.config.EndpointAddr,
		Handler:      httpapi.NewRouter(app.handler, []byte(app.config.SecretKey), app.logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runSweeper(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "shutdown error", "error", err.Error())
	}

	wg.Wait()

	if err := app.tagCache.Close(); err != nil {
		app.logger.Error(shutdownCtx, "cache close error", "error", err.Error())
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(shutdownCtx, "db close error", "error", err.Error())
	}

	app.logger.Info(shutdownCtx, "app stopped")
}
