// statement-worker consumes ledger events from AMQP and appends them to the
// family statement spreadsheet. The ledger is durable before anything lands
// here; a lost sheet row is recoverable, a lost ledger row is not.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"familybank/internal/config"
	"familybank/internal/events"
	applog "familybank/internal/log"
	gsheet "familybank/internal/sheets/google"
	"familybank/internal/storage"
	"familybank/internal/worker"
)

func main() {
	_ = godotenv.Load()

	applog.Setup("statement-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.GoogleSpreadsheetID == "" {
		slog.Error("GOOGLE_SPREADSHEET_ID is required for the statement worker")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		slog.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sheetsClient, err := gsheet.NewFromEnv(ctx)
	if err != nil {
		slog.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}

	consumer, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		slog.Error("Failed to connect to AMQP", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	w := worker.NewStatementWorker(repo, sheetsClient)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		slog.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	slog.Info("Statement worker started", "queue", cfg.AMQPQueue)
	if err := consumer.Consume(ctx, w.HandleEvent); err != nil && err != context.Canceled {
		slog.Error("Event consumption failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Statement worker stopped gracefully")
}
