package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"uptask/internal/models"
)

// OperationRunner drives a journaled multi-write operation: record it, apply each
// idempotent write with inline retries, and drop the record once everything landed.
// Records left behind are finished by the Reconciler.
type OperationRunner struct {
	journal  OperationJournal
	attempts int
	backoff  time.Duration
	metrics  *Metrics
}

// NewOperationRunner creates a runner retrying each write up to attempts times
func NewOperationRunner(journal OperationJournal, attempts int, metrics *Metrics) *OperationRunner {
	if attempts < 1 {
		attempts = 1
	}
	return &OperationRunner{
		journal:  journal,
		attempts: attempts,
		backoff:  50 * time.Millisecond,
		metrics:  metrics,
	}
}

// Begin journals a new operation
func (r *OperationRunner) Begin(ctx context.Context, kind models.OperationKind, projectID, taskID primitive.ObjectID) (*models.PendingOperation, error) {
	op := &models.PendingOperation{
		ID:        uuid.New().String(),
		Kind:      kind,
		ProjectID: projectID,
		TaskID:    taskID,
	}
	if err := r.journal.Begin(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// Apply runs one write of op with inline retries. ErrNotFound is returned at once.
// When retries run out the failure is recorded on the journal entry.
func (r *OperationRunner) Apply(ctx context.Context, op *models.PendingOperation, step string, write func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err = write(ctx); err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			break
		}
		if attempt < r.attempts {
			r.metrics.RecordOperation(string(op.Kind), "retried")
			select {
			case <-ctx.Done():
			case <-time.After(r.backoff * time.Duration(attempt)):
			}
		}
	}

	if errors.Is(err, ErrNotFound) {
		return err
	}

	log.Printf("[TASKS] Operation %s (%s) step %q failed: %v", op.ID, op.Kind, step, err)
	r.metrics.RecordOperation(string(op.Kind), "failed")
	if markErr := r.journal.MarkFailed(context.WithoutCancel(ctx), op.ID, err); markErr != nil {
		log.Printf("[TASKS] Could not record failure of operation %s: %v", op.ID, markErr)
	}
	return err
}

// Complete drops op from the journal. A failure only leaves a harmless replay behind.
func (r *OperationRunner) Complete(ctx context.Context, op *models.PendingOperation) {
	if err := r.journal.Complete(context.WithoutCancel(ctx), op.ID); err != nil {
		log.Printf("[TASKS] Could not complete operation %s: %v", op.ID, err)
		return
	}
	r.metrics.RecordOperation(string(op.Kind), "completed")
}
