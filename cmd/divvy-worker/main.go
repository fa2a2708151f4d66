package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"divvy/internal/amqp"
	"divvy/internal/config"
	"divvy/internal/ledger"
	applog "divvy/internal/log"
	"divvy/internal/remote"
	"divvy/internal/remote/memory"
	"divvy/internal/remote/sheets"
	"divvy/internal/services"
	"divvy/internal/storage"
	"divvy/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := applog.Setup(cfg.LogLevel, cfg.LogFormat)
	applog.SetDefault(logger)

	logger.Info("Starting divvy-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var journal remote.Journal
	switch cfg.JournalBackend {
	case "sheets":
		journal, err = sheets.New(ctx, sheets.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets journal", "error", err)
			os.Exit(1)
		}
		logger.Info("Initialized Google Sheets journal", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	default:
		journal = memory.New()
		logger.Info("Initialized in-memory journal")
	}

	amqpClient, err := amqp.DialWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(repo, journal, cfg.SyncBatchSize)

	// The recurring processor shares the service layer with the API server;
	// here it runs against its own ledger rebuilt from the database.
	svc := services.NewSettlementService(repo, ledger.New(), amqpClient)
	if err := svc.Reload(ctx); err != nil {
		logger.Error("Failed to rebuild ledger from database", "error", err)
		os.Exit(1)
	}
	processor := services.NewRecurringProcessor(repo, svc)

	// Catch up before the tickers start.
	if synced, err := syncWorker.ProcessPendingDebts(ctx); err != nil {
		logger.Error("Startup sync check failed", "error", err)
	} else if synced > 0 {
		logger.Info("Startup sync check complete", "synced", synced)
	}
	if created, err := processor.ProcessCurrentMonth(ctx, time.Now()); err != nil {
		logger.Error("Startup recurring run failed", "error", err)
	} else if created > 0 {
		logger.Info("Startup recurring run complete", "created", created)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeDebtSync(gctx, func(msg *amqp.DebtSyncMessage) error {
			return syncWorker.HandleMessage(gctx, msg)
		})
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if _, err := syncWorker.ProcessPendingDebts(gctx); err != nil {
					logger.Error("Periodic sync failed", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.RecurringInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if created, err := processor.ProcessCurrentMonth(gctx, time.Now()); err != nil {
					logger.Error("Recurring run failed", "error", err)
				} else if created > 0 {
					logger.Info("Recurring run complete", "created", created)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
