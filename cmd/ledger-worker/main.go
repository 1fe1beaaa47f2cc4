package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mohammedovez-84/Expense-management-sub001/internal/amqp"
	"github.com/mohammedovez-84/Expense-management-sub001/internal/config"
	applog "github.com/mohammedovez-84/Expense-management-sub001/internal/log"
	"github.com/mohammedovez-84/Expense-management-sub001/internal/notify"
	"github.com/mohammedovez-84/Expense-management-sub001/internal/services"
	"github.com/mohammedovez-84/Expense-management-sub001/internal/storage"
	"github.com/mohammedovez-84/Expense-management-sub001/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	logger.Info("Starting ledger-worker")

	cfg := config.Load()
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

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifyWorker := worker.NewNotifyWorker(repo, notify.NewLogNotifier())

	go func() {
		if err := amqpClient.ConsumeSettlementNotices(ctx, notifyWorker.HandleSettlementNotice); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Settlement notice consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Background reconciliation sweeps keep the user totals projection
	// honest while the worker runs.
	projector := services.NewProjector(repo)
	reconciler := services.NewReconcileProcessor(repo, projector, services.ReconcileConfig{
		Interval:    cfg.ReconcileInterval,
		Parallelism: cfg.ReconcileParallelism,
		Repair:      cfg.ReconcileRepair,
	})
	if err := reconciler.Start(ctx); err != nil {
		logger.Error("Failed to start reconcile processor", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := reconciler.Stop(shutdownCtx); err != nil {
		logger.Warn("Reconcile processor did not stop cleanly", "error", err)
	}

	logger.Info("Worker shutdown complete")
}
