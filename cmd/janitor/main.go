package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alim08/landing/pkg/config"
	"github.com/alim08/landing/pkg/database"
	"github.com/alim08/landing/pkg/logger"
	"github.com/alim08/landing/pkg/metrics"
	"go.uber.org/zap"
)

// janitor removes sessions whose tokens expired longer ago than the
// retention period, together with their events and conversions. Flags after
// "--" are passed to the shared config loader.
func main() {
	once := flag.Bool("once", false, "run a single pass and exit")
	metricsAddr := flag.String("metrics-addr", ":9102", "metrics listen address, empty to disable")
	flag.Parse()

	// 1) Load configuration
	cfg, err := config.Load(flag.Args())
	if err != nil {
		panic("config error: " + err.Error())
	}

	// 2) Initialize logger
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3) Connect to Postgres
	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		logger.Log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	tokens := database.NewTokenRepository(db)

	if *once {
		if _, err := runPass(ctx, tokens, cfg.Janitor.Retention, time.Now()); err != nil {
			os.Exit(1)
		}
		return
	}

	// 4) Start metrics server
	if *metricsAddr != "" {
		go startMetricsServer(*metricsAddr)
	}

	ticker := time.NewTicker(cfg.Janitor.Interval)
	defer ticker.Stop()

	logger.Log.Info("janitor started",
		zap.Duration("interval", cfg.Janitor.Interval),
		zap.Duration("retention", cfg.Janitor.Retention))

	runPass(ctx, tokens, cfg.Janitor.Retention, time.Now())
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("janitor shutting down")
			return
		case now := <-ticker.C:
			runPass(ctx, tokens, cfg.Janitor.Retention, now)
		}
	}
}

type purger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// runPass purges sessions that expired before now minus retention and
// records the outcome.
func runPass(ctx context.Context, repo purger, retention time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-retention)

	passCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	n, err := repo.PurgeExpired(passCtx, cutoff)
	metrics.JanitorRuns.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		logger.Log.Error("retention pass failed", zap.Error(err), zap.Time("cutoff", cutoff))
		return 0, err
	}

	metrics.JanitorPurgedSessions.Add(float64(n))
	logger.Log.Info("retention pass completed", zap.Int64("purged", n), zap.Time("cutoff", cutoff))
	return n, nil
}

func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger.Log.Info("metrics server started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Error("metrics server failed", zap.Error(err))
	}
}
