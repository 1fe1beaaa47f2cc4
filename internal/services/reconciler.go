package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammedovez-84/Expense-management-sub001/internal/core"
	"github.com/mohammedovez-84/Expense-management-sub001/internal/storage"
)

// ReconcileConfig holds configuration for the reconciliation processor.
type ReconcileConfig struct {
	// Interval is how often a full drift sweep runs (default: 1h).
	Interval time.Duration

	// Parallelism caps how many users are checked concurrently (default: 4).
	Parallelism int

	// Repair overwrites drifted projections with recomputed totals. When
	// false, drift is only reported.
	Repair bool
}

// DefaultReconcileConfig returns sensible defaults.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		Interval:    1 * time.Hour,
		Parallelism: 4,
	}
}

// ReconcileProcessor periodically verifies that every user's projected
// totals equal a fresh recomputation from source rows, and optionally
// repairs the drifted ones.
type ReconcileProcessor struct {
	store     *storage.SQLiteRepository
	projector *Projector
	config    ReconcileConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconcileProcessor(store *storage.SQLiteRepository, projector *Projector, config ReconcileConfig) *ReconcileProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultReconcileConfig().Interval
	}
	if config.Parallelism <= 0 {
		config.Parallelism = DefaultReconcileConfig().Parallelism
	}
	return &ReconcileProcessor{
		store:     store,
		projector: projector,
		config:    config,
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (p *ReconcileProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reconcile processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Reconcile processor started",
		"interval", p.config.Interval,
		"parallelism", p.config.Parallelism,
		"repair", p.config.Repair)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ReconcileProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Reconcile processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconcile processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning returns whether the processor is currently running.
func (p *ReconcileProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReconcileProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Sweep immediately on startup
	p.sweepAndLog(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepAndLog(ctx)
		}
	}
}

func (p *ReconcileProcessor) sweepAndLog(ctx context.Context) {
	report, err := p.Sweep(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Reconciliation sweep failed", "error", err)
		return
	}
	if len(report.Drifted) > 0 {
		slog.ErrorContext(ctx, "Reconciliation found drifted users",
			"users", report.Users,
			"drifted", len(report.Drifted),
			"repaired", report.Repaired,
			"error", core.ErrLedgerDrift)
		return
	}
	slog.InfoContext(ctx, "Reconciliation sweep clean", "users", report.Users)
}

// SweepReport summarizes one reconciliation pass.
type SweepReport struct {
	Users    int
	Drifted  []UserDrift
	Repaired int
}

// Sweep checks every active user, with bounded parallelism. Drifted users
// are collected into the report; when Repair is configured their projections
// are overwritten with the recomputed totals.
func (p *ReconcileProcessor) Sweep(ctx context.Context) (SweepReport, error) {
	userIDs, err := p.store.ListUserIDs(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list users for sweep: %w", err)
	}

	var (
		mu     sync.Mutex
		report = SweepReport{Users: len(userIDs)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Parallelism)
	for _, userID := range userIDs {
		g.Go(func() error {
			drift, err := p.projector.CheckUserTotals(gctx, userID)
			if err != nil {
				return fmt.Errorf("check user %s: %w", userID, err)
			}
			if drift.InSync() {
				return nil
			}

			slog.WarnContext(gctx, "User totals drifted",
				"user_id", userID,
				"projected_spent_cents", drift.Projected.Spent.Cents,
				"recomputed_spent_cents", drift.Recomputed.Spent.Cents)

			repaired := false
			if p.config.Repair {
				if _, err := p.projector.RefreshUserTotals(gctx, userID); err != nil {
					return fmt.Errorf("repair user %s: %w", userID, err)
				}
				repaired = true
			}

			mu.Lock()
			report.Drifted = append(report.Drifted, drift)
			if repaired {
				report.Repaired++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SweepReport{}, err
	}
	return report, nil
}
