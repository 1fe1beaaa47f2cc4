package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/mohammedovez-84/Expense-management-sub001/internal/config"
	applog "github.com/mohammedovez-84/Expense-management-sub001/internal/log"
	"github.com/mohammedovez-84/Expense-management-sub001/internal/services"
	"github.com/mohammedovez-84/Expense-management-sub001/internal/storage"
)

// ledger-reconcile runs a single reconciliation sweep and exits. Exit code
// 0 means every user's projection matched; 1 means drift was found (and
// repaired, with -repair); 2 means the sweep itself failed.
func main() {
	repair := flag.Bool("repair", false, "overwrite drifted projections with recomputed totals")
	flag.Parse()

	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentReconcile,
	})
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(2)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(2)
	}
	defer repo.Close()

	ctx := context.Background()
	projector := services.NewProjector(repo)
	reconciler := services.NewReconcileProcessor(repo, projector, services.ReconcileConfig{
		Parallelism: cfg.ReconcileParallelism,
		Repair:      *repair || cfg.ReconcileRepair,
	})

	report, err := reconciler.Sweep(ctx)
	if err != nil {
		logger.Error("Reconciliation sweep failed", "error", err)
		os.Exit(2)
	}

	if len(report.Drifted) > 0 {
		logger.Warn("Reconciliation found drifted users",
			"users", report.Users,
			"drifted", len(report.Drifted),
			"repaired", report.Repaired)
		os.Exit(1)
	}

	logger.Info("Reconciliation sweep clean", "users", report.Users)
}
