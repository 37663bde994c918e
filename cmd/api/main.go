package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alim08/landing/pkg/auth"
	"github.com/alim08/landing/pkg/config"
	"github.com/alim08/landing/pkg/database"
	"github.com/alim08/landing/pkg/logger"
	"github.com/alim08/landing/pkg/quote"
	"github.com/alim08/landing/pkg/redisclient"
	"go.uber.org/zap"
)

func main() {
	// 1) Load configuration
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		panic("config error: " + err.Error())
	}

	// 2) Initialize logger
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()
	log := logger.Log

	log.Info("starting landing API server", zap.String("environment", cfg.Environment))

	// 3) Connect to Postgres and migrate
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatal("failed to run database migrations", zap.Error(err))
	}
	log.Info("database migrations completed")

	store := database.NewStore(db)
	if err := seed(ctx, cfg, store); err != nil {
		log.Fatal("failed to seed defaults", zap.Error(err))
	}

	// 4) Build the server
	srv := newServer(cfg, store, auth.NewService(cfg.Auth), quote.NewService(cfg.Quote))
	srv.migrations = db
	srv.addCheck("database", db.HealthCheck)

	// 5) Optional Redis for rate limiting and the live feed
	if cfg.RedisURL != "" {
		rdb, err := redisclient.New(cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()

		srv.publisher = rdb
		srv.limiter = rdb
		srv.live = rdb
		srv.addCheck("redis", rdb.Ping)
		log.Info("redis enabled")
	} else {
		log.Info("REDIS_URL not set; rate limiting and live feed disabled")
	}

	// 6) Serve
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// 7) Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited")
}

// seed creates the configured admin account and the tracking settings row
// when they do not exist yet. Existing rows are left untouched.
func seed(ctx context.Context, cfg *config.Config, store *database.Store) error {
	if cfg.Auth.AdminPassword != "" {
		hash, err := auth.HashPassword(cfg.Auth.AdminPassword)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}
		created, err := store.Admins.EnsureAdmin(ctx, cfg.Auth.AdminUsername, hash)
		if err != nil {
			return fmt.Errorf("ensure admin: %w", err)
		}
		if created {
			logger.Log.Info("default admin account created", zap.String("username", cfg.Auth.AdminUsername))
		}
	}
	if err := store.Settings.EnsureTrackingSettings(ctx); err != nil {
		return fmt.Errorf("ensure tracking settings: %w", err)
	}
	return nil
}
