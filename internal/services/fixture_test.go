package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"uptask/internal/database/memstore"
	"uptask/internal/models"
	"uptask/pkg/apierrors"
)

// fixture wires every domain service over a fresh memstore
type fixture struct {
	store    *memstore.Store
	registry *prometheus.Registry
	metrics  *Metrics
	rooms    *RoomRegistry

	projects      *ProjectService
	collaboration *CollaborationService
	tasks         *TaskService
	realtime      *RealtimeService
	reconciler    *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, memstore.New(), nil, nil, nil)
}

// newFixtureWith lets tests swap in failing repositories; nil keeps the memstore one
func newFixtureWith(t *testing.T, store *memstore.Store, projects ProjectRepository, tasks TaskRepository, journal OperationJournal) *fixture {
	t.Helper()

	if projects == nil {
		projects = store.Projects()
	}
	if tasks == nil {
		tasks = store.Tasks()
	}
	if journal == nil {
		journal = store.Journal()
	}

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	rooms := NewRoomRegistry(metrics)
	t.Cleanup(rooms.Close)

	ops := NewOperationRunner(journal, 3, metrics)
	ops.backoff = time.Millisecond

	return &fixture{
		store:         store,
		registry:      registry,
		metrics:       metrics,
		rooms:         rooms,
		projects:      NewProjectService(projects, tasks, store.Users(), ops, rooms, metrics),
		collaboration: NewCollaborationService(projects, store.Users(), rooms, metrics),
		tasks:         NewTaskService(projects, tasks, store.Users(), ops, NewRealtimePropagator(rooms), metrics),
		realtime:      NewRealtimeService(projects, rooms, metrics),
		reconciler:    NewReconciler(journal, projects, tasks, rooms, time.Nanosecond, metrics),
	}
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	user := &models.User{
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: "argon2id$x$y",
		Confirmed:    true,
	}
	require.NoError(t, f.store.Users().Create(context.Background(), user))
	return user.Projected()
}

func (f *fixture) project(t *testing.T, owner *models.User) *models.Project {
	t.Helper()
	project, err := f.projects.CreateProject(context.Background(), owner, models.ProjectInput{
		Name:        owner.Name + "'s project",
		Description: "Website relaunch",
		Client:      "ACME",
	})
	require.NoError(t, err)
	return project
}

func (f *fixture) task(t *testing.T, project *models.Project, actor *models.User, name string) *models.TaskDetail {
	t.Helper()
	task, err := f.tasks.CreateTask(context.Background(), project.ID.Hex(), actor, models.TaskInput{
		Name:        name,
		Description: name + " description",
	})
	require.NoError(t, err)
	return task
}

func (f *fixture) storedProject(t *testing.T, id primitive.ObjectID) *models.Project {
	t.Helper()
	project, err := f.store.Projects().FindByID(context.Background(), id)
	require.NoError(t, err)
	return project
}

func requireKind(t *testing.T, err error, kind apierrors.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apierrors.KindOf(err), "unexpected error: %v", err)
}

// hookedTasks runs a one-shot callback around task writes to interleave a concurrent request
type hookedTasks struct {
	TaskRepository
	beforeUpdateContent func()
	afterDeleteByProject func()
}

func (h *hookedTasks) UpdateContent(ctx context.Context, task *models.Task) error {
	if hook := h.beforeUpdateContent; hook != nil {
		h.beforeUpdateContent = nil
		hook()
	}
	return h.TaskRepository.UpdateContent(ctx, task)
}

func (h *hookedTasks) DeleteByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	n, err := h.TaskRepository.DeleteByProject(ctx, projectID)
	if hook := h.afterDeleteByProject; hook != nil {
		h.afterDeleteByProject = nil
		hook()
	}
	return n, err
}

// hookedProjects runs a one-shot callback before a task is linked into its project
type hookedProjects struct {
	ProjectRepository
	beforeAddTask func()
}

func (h *hookedProjects) AddTask(ctx context.Context, projectID, taskID primitive.ObjectID) error {
	if hook := h.beforeAddTask; hook != nil {
		h.beforeAddTask = nil
		hook()
	}
	return h.ProjectRepository.AddTask(ctx, projectID, taskID)
}

// remainingTasks counts tasks still pointing at projectID
func (f *fixture) remainingTasks(t *testing.T, projectID primitive.ObjectID) int64 {
	t.Helper()
	n, err := f.store.Tasks().DeleteByProject(context.Background(), projectID)
	require.NoError(t, err)
	return n
}
