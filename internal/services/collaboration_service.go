package services

import (
	"context"
	"log"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"uptask/internal/access"
	"uptask/internal/models"
	"uptask/pkg/apierrors"
)

// CollaborationService manages the collaborator set of a project
type CollaborationService struct {
	projects ProjectRepository
	users    UserRepository
	rooms    *RoomRegistry
	metrics  *Metrics
}

// NewCollaborationService creates a collaboration service. rooms may be nil.
func NewCollaborationService(projects ProjectRepository, users UserRepository, rooms *RoomRegistry, metrics *Metrics) *CollaborationService {
	return &CollaborationService{
		projects: projects,
		users:    users,
		rooms:    rooms,
		metrics:  metrics,
	}
}

// FindUserByEmail returns the id, name and email of the account registered under email
func (s *CollaborationService) FindUserByEmail(ctx context.Context, email string) (*models.UserRef, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apierrors.Validation("Email is required")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, storeError(err, msgUserNotFound, "Failed to look up user")
	}
	ref := user.Ref()
	return &ref, nil
}

// AddCollaborator grants the account registered under email access to the project.
// Adding an existing member fails with AlreadyMember.
func (s *CollaborationService) AddCollaborator(ctx context.Context, projectID string, actor *models.User, email string) (*models.UserRef, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	oid, err := parseID(projectID, msgProjectNotFound)
	if err != nil {
		return nil, err
	}
	project, err := loadVisibleProject(ctx, s.projects, oid, actor, msgProjectNotFound)
	if err != nil {
		return nil, err
	}
	if !access.CanMutateProject(actor.ID, project) {
		return nil, deny(s.metrics, "add_collaborator")
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apierrors.Validation("Email is required")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, storeError(err, msgUserNotFound, "Failed to look up user")
	}
	if project.Creator == user.ID {
		return nil, apierrors.InvalidOperation("The project creator cannot be a collaborator")
	}
	if project.HasCollaborator(user.ID) {
		return nil, apierrors.AlreadyMember("User is already a collaborator of this project")
	}

	if err := s.projects.AddCollaborator(ctx, project.ID, user.ID); err != nil {
		return nil, storeError(err, msgProjectNotFound, "Failed to add collaborator")
	}

	log.Printf("[PROJECTS] User %s added to project %s", user.ID.Hex(), project.ID.Hex())
	ref := user.Ref()
	return &ref, nil
}

// RemoveCollaborator revokes a collaborator. Removing a non-member succeeds without changes.
func (s *CollaborationService) RemoveCollaborator(ctx context.Context, projectID string, actor *models.User, userID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	oid, err := parseID(projectID, msgProjectNotFound)
	if err != nil {
		return err
	}
	project, err := loadVisibleProject(ctx, s.projects, oid, actor, msgProjectNotFound)
	if err != nil {
		return err
	}
	if !access.CanMutateProject(actor.ID, project) {
		return deny(s.metrics, "remove_collaborator")
	}

	memberID, err := primitive.ObjectIDFromHex(userID)
	if err != nil || !project.HasCollaborator(memberID) {
		return nil
	}

	if err := s.projects.RemoveCollaborator(ctx, project.ID, memberID); err != nil {
		return storeError(err, msgProjectNotFound, "Failed to remove collaborator")
	}
	if s.rooms != nil {
		s.rooms.EvictUser(project.ID.Hex(), memberID.Hex())
	}

	log.Printf("[PROJECTS] User %s removed from project %s", memberID.Hex(), project.ID.Hex())
	return nil
}
