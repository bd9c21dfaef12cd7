// cmd/service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github-activity-sync/internal/api"
	"github-activity-sync/internal/config"
	"github-activity-sync/internal/database"
	"github-activity-sync/internal/github"
	"github-activity-sync/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully", "repos", len(cfg.Repos))

	mode, err := syncer.ParseMode(cfg.SyncMode)
	if err != nil {
		return fmt.Errorf("invalid SYNC_MODE: %w", err)
	}

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection and run migrations
	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	logger.Info("Database connection established")

	if err := runMigrations(cfg.DBURL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	// 5. Initialize application components
	ghClient, err := github.NewClient(cfg.GithubToken, cfg.RequestTimeout, logger)
	if err != nil {
		return fmt.Errorf("failed to create github client: %w", err)
	}
	db := database.New(dbpool)
	appSyncer := syncer.New(db, ghClient, logger, cfg.Repos, syncer.Options{
		Interval:      cfg.SyncInterval,
		Mode:          mode,
		DefaultSince:  cfg.DefaultSyncSinceTime,
		ReviewPRLimit: cfg.ReviewPRLimit,
	})

	// 6. Run the syncer and the read API side by side
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appSyncer.Start(gctx)
		return nil
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewRouter(db, logger),
	}
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("Application started. Waiting for shutdown signal...")
	return g.Wait()
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
