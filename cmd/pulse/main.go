package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/dgreene/pulse/pkg/analytics"
	"github.com/dgreene/pulse/pkg/api"
	"github.com/dgreene/pulse/pkg/cache"
	"github.com/dgreene/pulse/pkg/config"
	"github.com/dgreene/pulse/pkg/ingest"
	"github.com/dgreene/pulse/pkg/notify"
	"github.com/dgreene/pulse/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.NewLogger(observability.InfoLevel, os.Stderr).
			WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)
	metrics := observability.NewMetrics()

	db, err := openDatabase(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	store, err := cache.NewRedisStore(cache.Config{
		URL:        cfg.Redis.URL,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		MaxRetries: cfg.Redis.MaxRetries,
		PoolSize:   cfg.Redis.PoolSize,
	})
	if err != nil {
		logger.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}
	defer store.Close()

	catalog, err := analytics.NewCatalog(cfg.Analytics.QueryTimeout)
	if err != nil {
		logger.WithError(err).Error("invalid operation catalog")
		os.Exit(1)
	}

	executor := analytics.NewSQLExecutor(db, logger)
	service := analytics.NewService(catalog, executor, store, logger, metrics)
	hub := notify.NewHub(logger, metrics)
	refresher := analytics.NewRefresher(db, store, hub, cfg.Analytics.RefreshInterval, logger, metrics)
	ingestStore := ingest.NewStore(db, logger)

	if err := refresher.Start(); err != nil {
		logger.WithError(err).Error("failed to start refresh coordinator")
		os.Exit(1)
	}

	server := api.NewServer(service, refresher, ingestStore, hub, db, store, logger, metrics)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithField("addr", cfg.Server.Addr()).Info("pulse analytics server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	refresher.Stop(ctx)
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("server shutdown did not complete cleanly")
	}
	logger.Info("shutdown complete")
}

func openDatabase(cfg *config.Config, logger *observability.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithField("max_conns", cfg.Database.MaxOpenConns).Info("connected to database")
	return db, nil
}
