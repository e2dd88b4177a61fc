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

// TaskService runs the task lifecycle inside projects
type TaskService struct {
	projects ProjectRepository
	tasks    TaskRepository
	users    UserRepository
	ops      *OperationRunner
	events   TaskEventPublisher
	metrics  *Metrics
}

// NewTaskService creates a task service. events may be nil.
func NewTaskService(projects ProjectRepository, tasks TaskRepository, users UserRepository, ops *OperationRunner, events TaskEventPublisher, metrics *Metrics) *TaskService {
	return &TaskService{
		projects: projects,
		tasks:    tasks,
		users:    users,
		ops:      ops,
		events:   events,
		metrics:  metrics,
	}
}

// CreateTask stores a pending task and appends it to the project's task list
func (s *TaskService) CreateTask(ctx context.Context, projectID string, actor *models.User, input models.TaskInput) (*models.TaskDetail, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	input = trimTaskInput(input)
	if input.Name == "" || input.Description == "" {
		return nil, apierrors.Validation("Name and description are required")
	}
	if input.Priority == "" {
		input.Priority = models.TaskPriorityLow
	}
	if !input.Priority.Valid() {
		return nil, apierrors.Validation("Priority must be Low, Medium or High")
	}

	pid, err := parseID(projectID, msgProjectNotFound)
	if err != nil {
		return nil, err
	}
	project, err := loadVisibleProject(ctx, s.projects, pid, actor, msgProjectNotFound)
	if err != nil {
		return nil, err
	}
	if !access.CanMutateTaskContent(actor.ID, project) {
		return nil, deny(s.metrics, "create_task")
	}

	task := &models.Task{
		ID:          primitive.NewObjectID(),
		Name:        input.Name,
		Description: input.Description,
		State:       false,
		Priority:    input.Priority,
		Deadline:    time.Now(),
		Project:     project.ID,
	}
	if input.Deadline != nil {
		task.Deadline = *input.Deadline
	}

	op, err := s.ops.Begin(ctx, models.OperationTaskCreate, project.ID, task.ID)
	if err != nil {
		return nil, apierrors.Internal("Failed to create task", err)
	}
	// A failed insert leaves the entry behind; the reconciler drops it when no task landed.
	if err := s.ops.Apply(ctx, op, "insert task", func(ctx context.Context) error {
		err := s.tasks.Create(ctx, task)
		if errors.Is(err, ErrDuplicate) {
			return nil
		}
		return err
	}); err != nil {
		return nil, apierrors.Internal("Failed to create task", err)
	}

	if err := s.ops.Apply(ctx, op, "link task", func(ctx context.Context) error {
		return s.projects.AddTask(ctx, project.ID, task.ID)
	}); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Project deleted concurrently
			if delErr := s.tasks.Delete(context.WithoutCancel(ctx), task.ID); delErr == nil {
				s.ops.Complete(ctx, op)
			}
			return nil, apierrors.NotFound(msgProjectNotFound)
		}
		return nil, apierrors.Fatal("Task was saved but could not be added to its project", err)
	}
	s.ops.Complete(ctx, op)

	project.Tasks = append(project.Tasks, task.ID)
	detail := task.Detail(project, nil)
	s.publish(ctx, project.ID, models.EventTaskAdded, detail)
	return &detail, nil
}

// GetTask returns a task of a project the actor can read
func (s *TaskService) GetTask(ctx context.Context, taskID string, actor *models.User) (*models.TaskDetail, error) {
	task, project, err := s.loadTask(ctx, taskID, actor)
	if err != nil {
		return nil, err
	}
	detail := task.Detail(project, resolveCompleter(ctx, s.users, task))
	return &detail, nil
}

// UpdateTask overwrites the provided name, description, priority and deadline
func (s *TaskService) UpdateTask(ctx context.Context, taskID string, actor *models.User, input models.TaskInput) (*models.TaskDetail, error) {
	task, project, err := s.loadTask(ctx, taskID, actor)
	if err != nil {
		return nil, err
	}
	if !access.CanMutateTaskContent(actor.ID, project) {
		return nil, deny(s.metrics, "update_task")
	}

	input = trimTaskInput(input)
	if input.Priority != "" && !input.Priority.Valid() {
		return nil, apierrors.Validation("Priority must be Low, Medium or High")
	}
	if input.Name != "" {
		task.Name = input.Name
	}
	if input.Description != "" {
		task.Description = input.Description
	}
	if input.Priority != "" {
		task.Priority = input.Priority
	}
	if input.Deadline != nil {
		task.Deadline = *input.Deadline
	}

	if err := s.tasks.UpdateContent(ctx, task); err != nil {
		return nil, storeError(err, msgTaskNotFound, "Failed to update task")
	}

	// Reload so a toggle that landed meanwhile is reported as stored
	stored, err := s.tasks.FindByID(ctx, task.ID)
	if err != nil {
		return nil, storeError(err, msgTaskNotFound, "Failed to reload task")
	}
	detail := stored.Detail(project, resolveCompleter(ctx, s.users, stored))
	s.publish(ctx, project.ID, models.EventTaskEdited, detail)
	return &detail, nil
}

// DeleteTask removes the task from its project and deletes it
func (s *TaskService) DeleteTask(ctx context.Context, taskID string, actor *models.User) error {
	task, project, err := s.loadTask(ctx, taskID, actor)
	if err != nil {
		return err
	}
	if !access.CanMutateTaskContent(actor.ID, project) {
		return deny(s.metrics, "delete_task")
	}
	detail := task.Detail(project, resolveCompleter(ctx, s.users, task))

	op, err := s.ops.Begin(ctx, models.OperationTaskDelete, project.ID, task.ID)
	if err != nil {
		return apierrors.Internal("Failed to delete task", err)
	}
	if err := s.ops.Apply(ctx, op, "unlink task", func(ctx context.Context) error {
		return s.projects.RemoveTask(ctx, project.ID, task.ID)
	}); err != nil {
		return apierrors.Fatal("Task deletion did not complete", err)
	}
	if err := s.ops.Apply(ctx, op, "delete task", func(ctx context.Context) error {
		return s.tasks.Delete(ctx, task.ID)
	}); err != nil {
		return apierrors.Fatal("Task deletion did not complete", err)
	}
	s.ops.Complete(ctx, op)

	s.publish(ctx, project.ID, models.EventTaskRemoved, detail)
	return nil
}

// ToggleTaskState flips a task between pending and complete and records the actor as completer.
// The completer is stamped in both directions.
func (s *TaskService) ToggleTaskState(ctx context.Context, taskID string, actor *models.User) (*models.TaskDetail, error) {
	task, project, err := s.loadTask(ctx, taskID, actor)
	if err != nil {
		return nil, err
	}
	if !access.CanToggleTaskState(actor.ID, project) {
		return nil, deny(s.metrics, "toggle_task")
	}

	completer := actor.ID
	if err := s.tasks.SetState(ctx, task.ID, !task.State, &completer); err != nil {
		return nil, storeError(err, msgTaskNotFound, "Failed to update task")
	}

	stored, err := s.tasks.FindByID(ctx, task.ID)
	if err != nil {
		return nil, storeError(err, msgTaskNotFound, "Failed to reload task")
	}
	detail := stored.Detail(project, resolveCompleter(ctx, s.users, stored))
	s.publish(ctx, project.ID, models.EventTaskStateChanged, detail)
	return &detail, nil
}

// loadTask resolves a task and its project, hiding tasks of projects the actor cannot read
func (s *TaskService) loadTask(ctx context.Context, taskID string, actor *models.User) (*models.Task, *models.Project, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	oid, err := parseID(taskID, msgTaskNotFound)
	if err != nil {
		return nil, nil, err
	}
	task, err := s.tasks.FindByID(ctx, oid)
	if err != nil {
		return nil, nil, storeError(err, msgTaskNotFound, "Failed to load task")
	}
	project, err := loadVisibleProject(ctx, s.projects, task.Project, actor, msgTaskNotFound)
	if err != nil {
		return nil, nil, err
	}
	return task, project, nil
}

func (s *TaskService) publish(ctx context.Context, projectID primitive.ObjectID, eventType string, detail models.TaskDetail) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, projectID.Hex(), eventType, detail)
	log.Printf("[TASKS] %s task=%s project=%s", eventType, detail.ID, projectID.Hex())
}

func trimTaskInput(input models.TaskInput) models.TaskInput {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	input.Priority = models.TaskPriority(strings.TrimSpace(string(input.Priority)))
	input.Project = strings.TrimSpace(input.Project)
	return input
}
