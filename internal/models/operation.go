package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OperationKind names a multi-write operation tracked in the journal
type OperationKind string

const (
	OperationTaskCreate    OperationKind = "task_create"
	OperationTaskDelete    OperationKind = "task_delete"
	OperationProjectDelete OperationKind = "project_delete"
)

// PendingOperation records a multi-write operation until every write has been applied.
// Entries left behind are replayed by the reconciler; each replayed write is idempotent.
type PendingOperation struct {
	ID        string             `bson:"_id" json:"id"`
	Kind      OperationKind      `bson:"kind" json:"kind"`
	ProjectID primitive.ObjectID `bson:"projectId" json:"project_id"`
	TaskID    primitive.ObjectID `bson:"taskId,omitempty" json:"task_id,omitempty"`
	Attempts  int                `bson:"attempts" json:"attempts"`
	LastError string             `bson:"lastError,omitempty" json:"last_error,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updated_at"`
}
