package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"uptask/internal/database"
	"uptask/internal/models"
)

// Storage sentinels. Stores wrap these; services translate them into apierrors.
var (
	ErrNotFound  = database.ErrNotFound
	ErrDuplicate = database.ErrDuplicate
)

// UserRepository persists accounts
type UserRepository interface {
	// Create inserts the user and assigns its id. ErrDuplicate when the email is taken.
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByToken(ctx context.Context, token string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	// Update overwrites name, password hash, token and confirmation flag
	Update(ctx context.Context, user *models.User) error
}

// ProjectRepository persists projects and their membership and task sets
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Project, error)
	// FindCollaboratorOrCreator lists the projects userID created or collaborates on
	FindCollaboratorOrCreator(ctx context.Context, userID primitive.ObjectID) ([]models.Project, error)
	// UpdateDetails overwrites name, description, client and deadline
	UpdateDetails(ctx context.Context, project *models.Project) error
	// AddCollaborator adds userID to the set. Idempotent at the storage level.
	AddCollaborator(ctx context.Context, projectID, userID primitive.ObjectID) error
	// RemoveCollaborator pulls userID from the set. Idempotent.
	RemoveCollaborator(ctx context.Context, projectID, userID primitive.ObjectID) error
	// AddTask appends taskID unless already present. ErrNotFound when the project is gone.
	AddTask(ctx context.Context, projectID, taskID primitive.ObjectID) error
	// RemoveTask pulls taskID. Idempotent, succeeds when the project is gone.
	RemoveTask(ctx context.Context, projectID, taskID primitive.ObjectID) error
	// Delete removes the project if it exists
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// TaskRepository persists tasks
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Task, error)
	// FindByIDs returns the tasks that still exist, in no particular order
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Task, error)
	// UpdateContent overwrites name, description, priority and deadline; state is left alone
	UpdateContent(ctx context.Context, task *models.Task) error
	// SetState overwrites state and completer only
	SetState(ctx context.Context, id primitive.ObjectID, state bool, completedBy *primitive.ObjectID) error
	// Delete removes the task if it exists
	Delete(ctx context.Context, id primitive.ObjectID) error
	// DeleteByProject removes every task pointing at projectID
	DeleteByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error)
}

// OperationJournal tracks multi-write operations until all of their writes are applied
type OperationJournal interface {
	Begin(ctx context.Context, op *models.PendingOperation) error
	Complete(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) error
	// ListPending returns entries last touched before the cutoff, oldest first
	ListPending(ctx context.Context, before time.Time, limit int) ([]models.PendingOperation, error)
}
