package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"uptask/internal/models"
)

// Reconciler finishes multi-write operations that were left halfway.
// Every replayed write is idempotent, so replaying a completed step is harmless.
type Reconciler struct {
	journal  OperationJournal
	projects ProjectRepository
	tasks    TaskRepository
	rooms    *RoomRegistry
	grace    time.Duration
	batch    int
	metrics  *Metrics
}

// NewReconciler creates a reconciler. Entries younger than grace belong to in-flight requests and are skipped.
func NewReconciler(journal OperationJournal, projects ProjectRepository, tasks TaskRepository, rooms *RoomRegistry, grace time.Duration, metrics *Metrics) *Reconciler {
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Reconciler{
		journal:  journal,
		projects: projects,
		tasks:    tasks,
		rooms:    rooms,
		grace:    grace,
		batch:    100,
		metrics:  metrics,
	}
}

// ReconcileResult summarizes one pass
type ReconcileResult struct {
	Examined  int
	Completed int
	Failed    int
}

// RunOnce replays every stale journal entry
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileResult, error) {
	start := time.Now()
	var result ReconcileResult

	ops, err := r.journal.ListPending(ctx, start.Add(-r.grace), r.batch)
	if err != nil {
		return result, fmt.Errorf("failed to list pending operations: %w", err)
	}

	for i := range ops {
		op := &ops[i]
		result.Examined++
		if err := r.replay(ctx, op); err != nil {
			result.Failed++
			log.Printf("[RECONCILE] Operation %s (%s) still pending: %v", op.ID, op.Kind, err)
			if markErr := r.journal.MarkFailed(ctx, op.ID, err); markErr != nil {
				log.Printf("[RECONCILE] Could not record failure of %s: %v", op.ID, markErr)
			}
			continue
		}
		if err := r.journal.Complete(ctx, op.ID); err != nil {
			result.Failed++
			log.Printf("[RECONCILE] Could not complete %s: %v", op.ID, err)
			continue
		}
		result.Completed++
		r.metrics.RecordOperation(string(op.Kind), "reconciled")
	}

	r.metrics.RecordReconcile(time.Since(start).Seconds())
	if result.Examined > 0 {
		log.Printf("[RECONCILE] Pass done: examined=%d completed=%d failed=%d", result.Examined, result.Completed, result.Failed)
	}
	return result, nil
}

func (r *Reconciler) replay(ctx context.Context, op *models.PendingOperation) error {
	switch op.Kind {
	case models.OperationTaskCreate:
		return r.replayTaskCreate(ctx, op)
	case models.OperationTaskDelete:
		if err := r.projects.RemoveTask(ctx, op.ProjectID, op.TaskID); err != nil {
			return err
		}
		return r.tasks.Delete(ctx, op.TaskID)
	case models.OperationProjectDelete:
		if err := r.projects.Delete(ctx, op.ProjectID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if _, err := r.tasks.DeleteByProject(ctx, op.ProjectID); err != nil {
			return err
		}
		if r.rooms != nil {
			r.rooms.CloseRoom(op.ProjectID.Hex())
		}
		return nil
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// replayTaskCreate rolls a created task forward into its project, or removes it when the project is gone
func (r *Reconciler) replayTaskCreate(ctx context.Context, op *models.PendingOperation) error {
	if _, err := r.tasks.FindByID(ctx, op.TaskID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	err := r.projects.AddTask(ctx, op.ProjectID, op.TaskID)
	if errors.Is(err, ErrNotFound) {
		return r.tasks.Delete(ctx, op.TaskID)
	}
	return err
}
