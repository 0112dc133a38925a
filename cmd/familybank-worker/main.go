// familybank-worker runs the periodic jobs against the shared SQLite
// database: paying due allowances, materializing recurring chores, and
// pruning old approved chores. Every job is idempotent, so running this
// worker alongside the HTTP job endpoints is safe.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"familybank/internal/config"
	"familybank/internal/events"
	applog "familybank/internal/log"
	"familybank/internal/metrics"
	"familybank/internal/services"
	"familybank/internal/storage"
)

func main() {
	_ = godotenv.Load()

	applog.Setup("familybank-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		slog.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		p, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			slog.Warn("Event publishing disabled, broker unavailable", "error", err)
		} else {
			defer p.Close()
			publisher = p
		}
	}

	engine := services.NewAllocationEngine(repo)
	allowances := services.NewAllowanceScheduler(repo, engine, publisher, nil)
	chores := services.NewChoreService(repo, publisher, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		slog.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runEvery(gctx, cfg.AllowanceInterval, "allowances", func(ctx context.Context, now time.Time) error {
			processed, failed, err := allowances.ProcessDue(ctx, now)
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "Allowance run finished", "processed", processed, "failed", failed)
			return nil
		})
	})

	g.Go(func() error {
		return runEvery(gctx, cfg.MaterializeInterval, "chores", func(ctx context.Context, now time.Time) error {
			created, err := chores.MaterializeRecurring(ctx, now)
			if err != nil {
				return err
			}
			if created > 0 {
				slog.InfoContext(ctx, "Materialized recurring chores", "created", created)
			}
			return nil
		})
	})

	g.Go(func() error {
		return runEvery(gctx, cfg.CleanupInterval, "cleanup", func(ctx context.Context, now time.Time) error {
			deleted, err := chores.CleanupApproved(ctx, now)
			if err != nil {
				return err
			}
			if deleted > 0 {
				slog.InfoContext(ctx, "Cleaned up approved chores", "deleted", deleted)
			}
			return nil
		})
	})

	slog.Info("Worker started",
		"allowance_interval", cfg.AllowanceInterval,
		"materialize_interval", cfg.MaterializeInterval,
		"cleanup_interval", cfg.CleanupInterval)

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Worker stopped gracefully")
}

// runEvery runs job immediately and then on every tick until the context
// ends. Job errors are logged and counted, never fatal: the next tick
// retries.
func runEvery(ctx context.Context, interval time.Duration, name string, job func(context.Context, time.Time) error) error {
	run := func() {
		metrics.JobRuns.WithLabelValues(name).Inc()
		if err := job(ctx, time.Now().UTC()); err != nil {
			slog.ErrorContext(ctx, "Job run failed", "job", name, "error", err)
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}
