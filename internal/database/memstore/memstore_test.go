package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"uptask/internal/database"
	"uptask/internal/models"
)

func TestUsers_UniqueEmailAndTokenLookup(t *testing.T) {
	ctx := context.Background()
	users := New().Users()

	alice := &models.User{Name: "Alice", Email: "alice@example.com", Token: "tok"}
	require.NoError(t, users.Create(ctx, alice))
	assert.False(t, alice.ID.IsZero())

	err := users.Create(ctx, &models.User{Name: "Other", Email: "alice@example.com"})
	assert.True(t, errors.Is(err, database.ErrDuplicate))

	found, err := users.FindByToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)

	_, err = users.FindByToken(ctx, "")
	assert.True(t, errors.Is(err, database.ErrNotFound))

	found.Token = ""
	found.Confirmed = true
	require.NoError(t, users.Update(ctx, found))

	_, err = users.FindByToken(ctx, "tok")
	assert.True(t, errors.Is(err, database.ErrNotFound))
}

func TestProjects_SetSemantics(t *testing.T) {
	ctx := context.Background()
	projects := New().Projects()

	creator := primitive.NewObjectID()
	member := primitive.NewObjectID()
	project := &models.Project{Name: "P", Creator: creator}
	require.NoError(t, projects.Create(ctx, project))

	require.NoError(t, projects.AddCollaborator(ctx, project.ID, member))
	require.NoError(t, projects.AddCollaborator(ctx, project.ID, member))

	stored, err := projects.FindByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{member}, stored.Collaborators)

	visible, err := projects.FindCollaboratorOrCreator(ctx, member)
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	require.NoError(t, projects.RemoveCollaborator(ctx, project.ID, member))
	require.NoError(t, projects.RemoveCollaborator(ctx, project.ID, member))

	visible, err = projects.FindCollaboratorOrCreator(ctx, member)
	require.NoError(t, err)
	assert.Empty(t, visible)

	err = projects.AddTask(ctx, primitive.NewObjectID(), primitive.NewObjectID())
	assert.True(t, errors.Is(err, database.ErrNotFound))
	assert.NoError(t, projects.RemoveTask(ctx, primitive.NewObjectID(), primitive.NewObjectID()))
}

func TestProjects_ReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	projects := New().Projects()

	project := &models.Project{Name: "P", Creator: primitive.NewObjectID()}
	require.NoError(t, projects.Create(ctx, project))

	stored, err := projects.FindByID(ctx, project.ID)
	require.NoError(t, err)
	stored.Collaborators = append(stored.Collaborators, primitive.NewObjectID())

	again, err := projects.FindByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Collaborators)
}

func TestTasks_ContentAndStateWritesAreSeparate(t *testing.T) {
	ctx := context.Background()
	tasks := New().Tasks()

	task := &models.Task{Name: "draft", Priority: models.TaskPriorityLow, Project: primitive.NewObjectID()}
	require.NoError(t, tasks.Create(ctx, task))

	completer := primitive.NewObjectID()
	require.NoError(t, tasks.SetState(ctx, task.ID, true, &completer))

	stale := *task
	stale.Name = "final"
	stale.State = false
	stale.CompletedBy = nil
	require.NoError(t, tasks.UpdateContent(ctx, &stale))

	stored, err := tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", stored.Name)
	assert.True(t, stored.State)
	require.NotNil(t, stored.CompletedBy)
	assert.Equal(t, completer, *stored.CompletedBy)

	require.NoError(t, tasks.SetState(ctx, task.ID, false, nil))
	stored, err = tasks.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, stored.State)
	assert.Nil(t, stored.CompletedBy)
	assert.Equal(t, "final", stored.Name)

	assert.True(t, errors.Is(tasks.SetState(ctx, primitive.NewObjectID(), true, nil), database.ErrNotFound))
	missing := &models.Task{ID: primitive.NewObjectID()}
	assert.True(t, errors.Is(tasks.UpdateContent(ctx, missing), database.ErrNotFound))
}

func TestTasks_DeleteByProject(t *testing.T) {
	ctx := context.Background()
	tasks := New().Tasks()

	projectID := primitive.NewObjectID()
	other := primitive.NewObjectID()
	for i := 0; i < 3; i++ {
		require.NoError(t, tasks.Create(ctx, &models.Task{Name: "t", Project: projectID}))
	}
	keep := &models.Task{Name: "keep", Project: other}
	require.NoError(t, tasks.Create(ctx, keep))

	n, err := tasks.DeleteByProject(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = tasks.FindByID(ctx, keep.ID)
	assert.NoError(t, err)
}

func TestJournal_ListPendingOrdersAndFilters(t *testing.T) {
	ctx := context.Background()
	journal := New().Journal()

	require.NoError(t, journal.Begin(ctx, &models.PendingOperation{ID: "a", Kind: models.OperationTaskCreate}))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, journal.Begin(ctx, &models.PendingOperation{ID: "b", Kind: models.OperationTaskDelete}))

	ops, err := journal.ListPending(ctx, time.Now().Add(time.Second), 0)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "a", ops[0].ID)

	require.NoError(t, journal.MarkFailed(ctx, "a", errors.New("boom")))
	ops, err = journal.ListPending(ctx, time.Now().Add(time.Second), 1)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "b", ops[0].ID)

	ops, err = journal.ListPending(ctx, time.Now().Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, ops)

	require.NoError(t, journal.Complete(ctx, "a"))
	require.NoError(t, journal.Complete(ctx, "b"))
	ops, _ = journal.ListPending(ctx, time.Now().Add(time.Second), 0)
	assert.Empty(t, ops)
}
