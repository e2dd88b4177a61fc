package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"uptask/internal/access"
	"uptask/internal/models"
	"uptask/pkg/apierrors"
)

// ProjectService manages projects visible to the caller
type ProjectService struct {
	projects ProjectRepository
	tasks    TaskRepository
	users    UserRepository
	ops      *OperationRunner
	rooms    *RoomRegistry
	metrics  *Metrics
}

// NewProjectService creates a project service. rooms may be nil when realtime is disabled.
func NewProjectService(projects ProjectRepository, tasks TaskRepository, users UserRepository, ops *OperationRunner, rooms *RoomRegistry, metrics *Metrics) *ProjectService {
	return &ProjectService{
		projects: projects,
		tasks:    tasks,
		users:    users,
		ops:      ops,
		rooms:    rooms,
		metrics:  metrics,
	}
}

// ListProjectsVisibleTo returns the projects the actor created or collaborates on, without tasks
func (s *ProjectService) ListProjectsVisibleTo(ctx context.Context, actor *models.User) ([]models.Project, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	projects, err := s.projects.FindCollaboratorOrCreator(ctx, actor.ID)
	if err != nil {
		return nil, apierrors.Internal("Failed to list projects", err)
	}
	return projects, nil
}

// CreateProject stores a new project owned by the actor
func (s *ProjectService) CreateProject(ctx context.Context, actor *models.User, input models.ProjectInput) (*models.Project, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	input = trimProjectInput(input)
	if input.Name == "" || input.Description == "" || input.Client == "" {
		return nil, apierrors.Validation("Name, description and client are required")
	}

	project := &models.Project{
		Name:          input.Name,
		Description:   input.Description,
		Client:        input.Client,
		Deadline:      time.Now(),
		Creator:       actor.ID,
		Collaborators: []primitive.ObjectID{},
		Tasks:         []primitive.ObjectID{},
	}
	if input.Deadline != nil {
		project.Deadline = *input.Deadline
	}

	if err := s.projects.Create(ctx, project); err != nil {
		return nil, apierrors.Internal("Failed to create project", err)
	}
	return project, nil
}

// GetProject returns the project with its tasks and collaborators resolved
func (s *ProjectService) GetProject(ctx context.Context, projectID string, actor *models.User) (*models.ProjectDetail, error) {
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

	tasks, err := s.tasks.FindByIDs(ctx, project.Tasks)
	if err != nil {
		return nil, apierrors.Internal("Failed to load project tasks", err)
	}
	taskByID := make(map[primitive.ObjectID]*models.Task, len(tasks))
	userIDs := append([]primitive.ObjectID{}, project.Collaborators...)
	for i := range tasks {
		taskByID[tasks[i].ID] = &tasks[i]
		if tasks[i].CompletedBy != nil {
			userIDs = append(userIDs, *tasks[i].CompletedBy)
		}
	}
	users, err := resolveUsers(ctx, s.users, userIDs)
	if err != nil {
		return nil, apierrors.Internal("Failed to load project members", err)
	}

	detail := &models.ProjectDetail{
		ID:            project.ID.Hex(),
		Name:          project.Name,
		Description:   project.Description,
		Client:        project.Client,
		Deadline:      project.Deadline,
		Creator:       project.Creator.Hex(),
		Collaborators: make([]models.UserRef, 0, len(project.Collaborators)),
		Tasks:         make([]models.TaskView, 0, len(project.Tasks)),
		CreatedAt:     project.CreatedAt,
		UpdatedAt:     project.UpdatedAt,
	}
	for _, id := range project.Tasks {
		task, ok := taskByID[id]
		if !ok {
			continue
		}
		var completer *models.User
		if task.CompletedBy != nil {
			completer = users[*task.CompletedBy]
		}
		detail.Tasks = append(detail.Tasks, task.View(completer))
	}
	for _, id := range project.Collaborators {
		if user, ok := users[id]; ok {
			detail.Collaborators = append(detail.Collaborators, user.Ref())
		}
	}
	return detail, nil
}

// UpdateProject overwrites the provided fields. Only the creator may edit.
func (s *ProjectService) UpdateProject(ctx context.Context, projectID string, actor *models.User, input models.ProjectInput) (*models.Project, error) {
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
		return nil, deny(s.metrics, "update_project")
	}

	input = trimProjectInput(input)
	if input.Name != "" {
		project.Name = input.Name
	}
	if input.Description != "" {
		project.Description = input.Description
	}
	if input.Client != "" {
		project.Client = input.Client
	}
	if input.Deadline != nil {
		project.Deadline = *input.Deadline
	}

	if err := s.projects.UpdateDetails(ctx, project); err != nil {
		return nil, storeError(err, msgProjectNotFound, "Failed to update project")
	}
	return project, nil
}

// DeleteProject removes the project and all of its tasks. Only the creator may delete.
func (s *ProjectService) DeleteProject(ctx context.Context, projectID string, actor *models.User) error {
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
		return deny(s.metrics, "delete_project")
	}

	op, err := s.ops.Begin(ctx, models.OperationProjectDelete, project.ID, primitive.NilObjectID)
	if err != nil {
		return apierrors.Internal("Failed to delete project", err)
	}

	// Project before tasks: a concurrent CreateTask can no longer link, and the sweep
	// catches any task inserted earlier.
	if err := s.ops.Apply(ctx, op, "delete project", func(ctx context.Context) error {
		return s.projects.Delete(ctx, project.ID)
	}); err != nil && !errors.Is(err, ErrNotFound) {
		return apierrors.Fatal("Project deletion did not complete", err)
	}
	var removed int64
	if err := s.ops.Apply(ctx, op, "delete tasks", func(ctx context.Context) error {
		n, err := s.tasks.DeleteByProject(ctx, project.ID)
		removed = n
		return err
	}); err != nil {
		return apierrors.Fatal("Project deletion did not complete", err)
	}
	s.ops.Complete(ctx, op)

	if s.rooms != nil {
		s.rooms.CloseRoom(project.ID.Hex())
	}
	log.Printf("[PROJECTS] Project %s deleted with %d task(s)", project.ID.Hex(), removed)
	return nil
}

func trimProjectInput(input models.ProjectInput) models.ProjectInput {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	input.Client = strings.TrimSpace(input.Client)
	return input
}
