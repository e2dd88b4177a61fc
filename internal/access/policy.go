// Package access holds the authorization rules for projects and their tasks.
//
// Every predicate is a pure function over already-loaded data. Callers evaluate
// the predicate before issuing any write.
package access

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"uptask/internal/models"
)

// IsCreator reports whether userID created the project
func IsCreator(userID primitive.ObjectID, project *models.Project) bool {
	if project == nil || userID.IsZero() {
		return false
	}
	return project.Creator == userID
}

// CanReadProject allows the creator and every collaborator
func CanReadProject(userID primitive.ObjectID, project *models.Project) bool {
	if project == nil || userID.IsZero() {
		return false
	}
	return project.Creator == userID || project.HasCollaborator(userID)
}

// CanMutateProject allows only the creator to edit, delete, or manage collaborators
func CanMutateProject(userID primitive.ObjectID, project *models.Project) bool {
	return IsCreator(userID, project)
}

// CanMutateTaskContent allows only the project creator to create, edit, or delete tasks
func CanMutateTaskContent(userID primitive.ObjectID, project *models.Project) bool {
	return CanMutateProject(userID, project)
}

// CanToggleTaskState allows the creator and every collaborator
func CanToggleTaskState(userID primitive.ObjectID, project *models.Project) bool {
	return CanReadProject(userID, project)
}
