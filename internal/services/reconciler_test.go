package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"uptask/internal/database/memstore"
	"uptask/internal/models"
	"uptask/pkg/apierrors"
)

var errStorageDown = errors.New("storage unavailable")

// failures counts down per named write; a positive count fails that many calls
type failures struct {
	mu    sync.Mutex
	left  map[string]int
	calls map[string]int
	err   error
}

func newFailures() *failures {
	return &failures{left: map[string]int{}, calls: map[string]int{}, err: errStorageDown}
}

func (f *failures) set(name string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left[name] = n
}

func (f *failures) hit(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if f.left[name] > 0 {
		f.left[name]--
		return f.err
	}
	return nil
}

func (f *failures) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

type flakyProjects struct {
	ProjectRepository
	fail *failures
}

func (p *flakyProjects) AddTask(ctx context.Context, projectID, taskID primitive.ObjectID) error {
	if err := p.fail.hit("AddTask"); err != nil {
		return err
	}
	return p.ProjectRepository.AddTask(ctx, projectID, taskID)
}

func (p *flakyProjects) RemoveTask(ctx context.Context, projectID, taskID primitive.ObjectID) error {
	if err := p.fail.hit("RemoveTask"); err != nil {
		return err
	}
	return p.ProjectRepository.RemoveTask(ctx, projectID, taskID)
}

type flakyTasks struct {
	TaskRepository
	fail *failures
}

func (t *flakyTasks) DeleteByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	if err := t.fail.hit("DeleteByProject"); err != nil {
		return 0, err
	}
	return t.TaskRepository.DeleteByProject(ctx, projectID)
}

type flakyJournal struct {
	OperationJournal
	fail *failures
}

func (j *flakyJournal) Begin(ctx context.Context, op *models.PendingOperation) error {
	if err := j.fail.hit("Begin"); err != nil {
		return err
	}
	return j.OperationJournal.Begin(ctx, op)
}

// newFlakyFixture wraps the memstore repositories with failure injection
func newFlakyFixture(t *testing.T) (*fixture, *failures) {
	t.Helper()
	fail := newFailures()
	store := memstore.New()
	f := newFixtureWith(t, store,
		&flakyProjects{ProjectRepository: store.Projects(), fail: fail},
		&flakyTasks{TaskRepository: store.Tasks(), fail: fail},
		&flakyJournal{OperationJournal: store.Journal(), fail: fail},
	)
	return f, fail
}

func pendingOps(t *testing.T, f *fixture) []models.PendingOperation {
	t.Helper()
	ops, err := f.store.Journal().ListPending(context.Background(), time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	return ops
}

func TestCreateTask_TransientLinkFailureIsRetried(t *testing.T) {
	f, fail := newFlakyFixture(t)
	ctx := context.Background()
	ana := f.user(t, "ana")
	project := f.project(t, ana)

	fail.set("AddTask", 2)
	task, err := f.tasks.CreateTask(ctx, project.ID.Hex(), ana, models.TaskInput{Name: "x", Description: "y"})
	require.NoError(t, err)

	assert.Equal(t, 3, fail.count("AddTask"))
	oid, _ := primitive.ObjectIDFromHex(task.ID)
	assert.True(t, f.storedProject(t, project.ID).HasTask(oid))
	assert.Empty(t, pendingOps(t, f))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.PendingOperations.WithLabelValues(string(models.OperationTaskCreate), "retried")))
}

func TestCreateTask_ExhaustedRetriesAreFatalThenReconciled(t *testing.T) {
	f, fail := newFlakyFixture(t)
	ctx := context.Background()
	ana := f.user(t, "ana")
	project := f.project(t, ana)

	fail.set("AddTask", 3)
	_, err := f.tasks.CreateTask(ctx, project.ID.Hex(), ana, models.TaskInput{Name: "orphan", Description: "y"})
	requireKind(t, err, apierrors.KindFatal)
	assert.NotContains(t, apierrors.MessageOf(err), errStorageDown.Error())

	ops := pendingOps(t, f)
	require.Len(t, ops, 1)
	assert.Equal(t, models.OperationTaskCreate, ops[0].Kind)
	assert.Equal(t, 1, ops[0].Attempts)
	assert.Equal(t, errStorageDown.Error(), ops[0].LastError)
	assert.Empty(t, f.storedProject(t, project.ID).Tasks)

	time.Sleep(2 * time.Millisecond)
	result, err := f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Examined: 1, Completed: 1}, result)

	stored := f.storedProject(t, project.ID)
	require.Len(t, stored.Tasks, 1)
	assert.Equal(t, ops[0].TaskID, stored.Tasks[0])
	assert.Empty(t, pendingOps(t, f))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReconcileRuns))
}

func TestCreateTask_ProjectVanishedRemovesTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.user(t, "ana")
	project := f.project(t, ana)

	vanishing := &vanishingProjects{ProjectRepository: f.store.Projects()}
	svc := NewTaskService(vanishing, f.store.Tasks(), f.store.Users(), NewOperationRunner(f.store.Journal(), 3, nil), nil, nil)

	_, err := svc.CreateTask(ctx, project.ID.Hex(), ana, models.TaskInput{Name: "late", Description: "y"})
	requireKind(t, err, apierrors.KindNotFound)

	require.NotNil(t, vanishing.taskID)
	_, err = f.store.Tasks().FindByID(ctx, *vanishing.taskID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, pendingOps(t, f))
}

// vanishingProjects deletes the project right before the task is linked
type vanishingProjects struct {
	ProjectRepository
	taskID *primitive.ObjectID
}

func (p *vanishingProjects) AddTask(ctx context.Context, projectID, taskID primitive.ObjectID) error {
	p.taskID = &taskID
	if err := p.ProjectRepository.Delete(ctx, projectID); err != nil {
		return err
	}
	return p.ProjectRepository.AddTask(ctx, projectID, taskID)
}

func TestDeleteTask_FatalThenReconciled(t *testing.T) {
	f, fail := newFlakyFixture(t)
	ctx := context.Background()
	ana := f.user(t, "ana")
	project := f.project(t, ana)
	task := f.task(t, project, ana, "stubborn")

	fail.set("RemoveTask", 5)
	err := f.tasks.DeleteTask(ctx, task.ID, ana)
	requireKind(t, err, apierrors.KindFatal)
	require.Len(t, pendingOps(t, f), 1)

	// still failing: the entry stays and its attempt count grows
	time.Sleep(2 * time.Millisecond)
	result, err := f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Examined: 1, Failed: 1}, result)
	ops := pendingOps(t, f)
	require.Len(t, ops, 1)
	assert.Equal(t, 2, ops[0].Attempts)

	fail.set("RemoveTask", 0)
	time.Sleep(2 * time.Millisecond)
	result, err = f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)

	oid, _ := primitive.ObjectIDFromHex(task.ID)
	assert.False(t, f.storedProject(t, project.ID).HasTask(oid))
	_, err = f.store.Tasks().FindByID(ctx, oid)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, pendingOps(t, f))
}

func TestDeleteProject_FatalThenReconciled(t *testing.T) {
	f, fail := newFlakyFixture(t)
	ctx := context.Background()
	ana := f.user(t, "ana")
	project := f.project(t, ana)
	task := f.task(t, project, ana, "child")

	conn, err := f.rooms.Connect(ana.ID.Hex(), 4)
	require.NoError(t, err)
	require.NoError(t, f.realtime.JoinProjectRoom(ctx, conn.ID, project.ID.Hex(), ana))

	fail.set("DeleteByProject", 3)
	err = f.projects.DeleteProject(ctx, project.ID.Hex(), ana)
	requireKind(t, err, apierrors.KindFatal)
	_, err = f.store.Projects().FindByID(ctx, project.ID)
	assert.ErrorIs(t, err, ErrNotFound, "the project goes before its tasks")
	assert.Equal(t, 3, fail.count("DeleteByProject"))
	assert.Equal(t, 1, f.rooms.RoomSize(project.ID.Hex()))

	time.Sleep(2 * time.Millisecond)
	result, err := f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)

	_, err = f.store.Projects().FindByID(ctx, project.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	oid, _ := primitive.ObjectIDFromHex(task.ID)
	_, err = f.store.Tasks().FindByID(ctx, oid)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, f.rooms.RoomSize(project.ID.Hex()))
}

func TestJournalBeginFailureWritesNothing(t *testing.T) {
	f, fail := newFlakyFixture(t)
	ctx := context.Background()
	ana := f.user(t, "ana")
	project := f.project(t, ana)

	fail.set("Begin", 1)
	_, err := f.tasks.CreateTask(ctx, project.ID.Hex(), ana, models.TaskInput{Name: "x", Description: "y"})
	requireKind(t, err, apierrors.KindInternal)
	assert.Empty(t, f.storedProject(t, project.ID).Tasks)
	assert.Equal(t, 0, fail.count("AddTask"))
}

func TestReconciler_DropsCreateWhoseTaskNeverLanded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.user(t, "ana")
	project := f.project(t, ana)

	require.NoError(t, f.store.Journal().Begin(ctx, &models.PendingOperation{
		ID:        "op-missing-task",
		Kind:      models.OperationTaskCreate,
		ProjectID: project.ID,
		TaskID:    primitive.NewObjectID(),
	}))
	time.Sleep(2 * time.Millisecond)

	result, err := f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Examined: 1, Completed: 1}, result)
	assert.Empty(t, f.storedProject(t, project.ID).Tasks)
	assert.Empty(t, pendingOps(t, f))
}

func TestReconciler_SkipsFreshEntriesAndUnknownKinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Journal().Begin(ctx, &models.PendingOperation{ID: "op-bogus", Kind: "bogus"}))
	slow := NewReconciler(f.store.Journal(), f.store.Projects(), f.store.Tasks(), f.rooms, time.Hour, nil)
	result, err := slow.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Examined)

	time.Sleep(2 * time.Millisecond)
	result, err = f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Examined: 1, Failed: 1}, result)

	ops := pendingOps(t, f)
	require.Len(t, ops, 1)
	assert.Contains(t, ops[0].LastError, fmt.Sprintf("%q", "bogus"))
}
