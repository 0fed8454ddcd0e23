package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/logger"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker consumes saved-snapshot events, keeps the lock gauge current and
// applies retention.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty).With().Str("process", "worker").Logger()

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("worker failed")
	}
}

func run(cfg config.App, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		history attendance.HistoryRepository
		redis   *store.Redis
	)
	if cfg.StoreBackend == "memory" {
		log.Warn().Msg("in-memory store: the worker sees no snapshots written by the api")
		history = attendance.NewMemoryRepository()
	} else {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
		defer db.Close()
		history = attendance.NewPostgresRepository(db.Client)
	}

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		redis = store.NewRedis(cfg.RedisAddr)
		defer redis.Close()
		q = queue.NewRedisQueue(redis.Client, "")
	} else {
		log.Warn().Msg("in-memory queue: no events reach this process")
		q = queue.NewInMemory(64)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	svc := attendance.NewService(nil, history, attendance.Options{
		Cooldown: cfg.LockCooldown,
		Location: cfg.Location(),
		Metrics:  m,
		Logger:   log,
	})
	w := &worker{
		svc:               svc,
		metrics:           m,
		log:               log,
		pollInterval:      cfg.LockPollInterval,
		retentionDays:     cfg.RetentionDays,
		retentionInterval: cfg.RetentionInterval,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.consume(messages)
	}()
	go func() {
		defer wg.Done()
		every(ctx, w.pollInterval, w.pollLocks)
	}()
	if w.retentionDays > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			every(ctx, w.retentionInterval, w.sweep)
		}()
	}

	log.Info().Dur("poll_interval", w.pollInterval).Int("retention_days", w.retentionDays).Msg("worker started")
	<-ctx.Done()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("worker stopped")
	return nil
}
