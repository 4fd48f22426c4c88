package analyses

import (
	"context"
	"fmt"
	"time"

	"bloodtest-backend/internal/shared/metrics"
	"bloodtest-backend/internal/shared/telemetry"
)

// Sweeper removes expired terminal records and reconciles records
// stranded in processing by a crashed worker.
type Sweeper struct {
	Repo Repo

	// RetentionWindow is how long completed and failed records are
	// kept before the sweep removes them.
	RetentionWindow time.Duration
	// StuckAfter is how long a record may sit in processing before
	// the sweep fails it. Set this past the hard job time limit so a
	// slow-but-live job is never reconciled out from under its worker.
	StuckAfter time.Duration
}

// NewSweeper wires a sweeper from its dependencies.
func NewSweeper(repo Repo, retention, stuckAfter time.Duration) *Sweeper {
	return &Sweeper{Repo: repo, RetentionWindow: retention, StuckAfter: stuckAfter}
}

// SweepExpired removes terminal records older than the retention
// window. Pending and processing records are left alone.
func (s *Sweeper) SweepExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.RetentionWindow)
	removed, err := s.Repo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep expired records: %w", err)
	}
	if removed > 0 {
		metrics.AddRecordsSwept(removed)
		telemetry.Info("sweep.expired", map[string]any{
			"removed": removed,
			"cutoff":  cutoff.Format(time.RFC3339),
		})
	}
	return removed, nil
}

// ReconcileStuck fails processing records that have outlived the
// stuck threshold so pollers see a terminal state instead of a record
// that spins forever.
func (s *Sweeper) ReconcileStuck(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.StuckAfter)
	message := fmt.Sprintf("processing exceeded %s; worker presumed lost", s.StuckAfter)
	failed, err := s.Repo.FailStaleProcessing(ctx, cutoff, message)
	if err != nil {
		return 0, fmt.Errorf("reconcile stuck records: %w", err)
	}
	if failed > 0 {
		metrics.AddRecordsReconciled(failed)
		telemetry.Warn("sweep.reconciled", map[string]any{
			"failed": failed,
			"cutoff": cutoff.Format(time.RFC3339),
		})
	}
	return failed, nil
}

// Run executes both sweeps on the given interval until ctx is done.
// One pass runs immediately on startup so a restart catches up.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	s.pass(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Sweeper) pass(ctx context.Context) {
	if _, err := s.SweepExpired(ctx); err != nil {
		telemetry.Error("sweep.expired_error", map[string]any{"error": err.Error()})
	}
	if _, err := s.ReconcileStuck(ctx); err != nil {
		telemetry.Error("sweep.reconcile_error", map[string]any{"error": err.Error()})
	}
}
