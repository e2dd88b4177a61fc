package services

import (
	"context"
	"errors"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"uptask/internal/access"
	"uptask/internal/models"
	"uptask/pkg/apierrors"
)

const (
	msgProjectNotFound = "Project not found"
	msgTaskNotFound    = "Task not found"
	msgUserNotFound    = "User not found"
	msgForbidden       = "Invalid action"
)

// parseID treats a malformed id like an id that does not resolve
func parseID(raw, notFoundMsg string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apierrors.NotFound(notFoundMsg)
	}
	return oid, nil
}

// storeError translates a repository failure into an apierrors kind
func storeError(err error, notFoundMsg, internalMsg string) error {
	if errors.Is(err, ErrNotFound) {
		return apierrors.NotFound(notFoundMsg)
	}
	return apierrors.Internal(internalMsg, err)
}

// requireActor rejects calls that reach a service without a verified session
func requireActor(actor *models.User) error {
	if actor == nil || actor.ID.IsZero() {
		return apierrors.Unauthorized("Authentication required")
	}
	return nil
}

// loadVisibleProject answers NotFound both for missing projects and for projects
// the actor cannot read, so existence is not disclosed.
func loadVisibleProject(ctx context.Context, projects ProjectRepository, projectID primitive.ObjectID, actor *models.User, notFoundMsg string) (*models.Project, error) {
	project, err := projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, storeError(err, notFoundMsg, "Failed to load project")
	}
	if !access.CanReadProject(actor.ID, project) {
		return nil, apierrors.NotFound(notFoundMsg)
	}
	return project, nil
}

// deny records a policy refusal and returns the matching error
func deny(metrics *Metrics, operation string) error {
	metrics.RecordDenied(operation, string(apierrors.KindForbidden))
	log.Printf("[AUTH] Denied %s", operation)
	return apierrors.Forbidden(msgForbidden)
}

// resolveUsers loads ids into a lookup map, ignoring users that no longer exist
func resolveUsers(ctx context.Context, users UserRepository, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error) {
	byID := make(map[primitive.ObjectID]*models.User, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	found, err := users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range found {
		byID[found[i].ID] = &found[i]
	}
	return byID, nil
}

// resolveCompleter loads the user that last toggled a task, if any
func resolveCompleter(ctx context.Context, users UserRepository, task *models.Task) *models.User {
	if task.CompletedBy == nil {
		return nil
	}
	user, err := users.FindByID(ctx, *task.CompletedBy)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("[TASKS] Failed to resolve completer of task %s: %v", task.ID.Hex(), err)
		}
		return nil
	}
	return user
}
