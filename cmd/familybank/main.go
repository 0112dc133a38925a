package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"familybank/internal/config"
	"familybank/internal/events"
	apphttp "familybank/internal/http"
	applog "familybank/internal/log"
	"familybank/internal/services"
	"familybank/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	applog.Setup("familybank")

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

	// Event publishing is optional: without a broker the ledger still works,
	// only the statement export goes dark.
	var publisher *events.Publisher
	if cfg.AMQPURL != "" {
		publisher, err = events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			slog.Warn("Event publishing disabled, broker unavailable", "error", err)
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	engine := services.NewAllocationEngine(repo)
	chores := services.NewChoreService(repo, publisherOrNil(publisher), nil)
	allowances := services.NewAllowanceScheduler(repo, engine, publisherOrNil(publisher), nil)
	wishlist := services.NewWishlistService(repo, publisherOrNil(publisher), nil)
	cashout := services.NewCashOutService(repo, publisherOrNil(publisher))

	srv := apphttp.NewServer(":"+cfg.Port, repo, engine, chores, allowances, wishlist, cashout, cfg.JobSecret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		slog.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	slog.Info("Starting familybank server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("Server stopped gracefully")
}

// publisherOrNil avoids handing services a typed nil inside the interface.
func publisherOrNil(p *events.Publisher) services.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
