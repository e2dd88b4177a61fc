package jobs

import (
	"context"
	"time"

	"uptask/internal/services"
)

// ReconcileJob periodically finishes multi-write operations left pending in the journal
type ReconcileJob struct {
	reconciler *services.Reconciler
	interval   time.Duration
}

// NewReconcileJob creates a reconcile job running every interval
func NewReconcileJob(reconciler *services.Reconciler, interval time.Duration) *ReconcileJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReconcileJob{reconciler: reconciler, interval: interval}
}

// Run performs one reconciliation pass
func (j *ReconcileJob) Run(ctx context.Context) error {
	_, err := j.reconciler.RunOnce(ctx)
	return err
}

// Interval returns how often the job runs
func (j *ReconcileJob) Interval() time.Duration {
	return j.interval
}
