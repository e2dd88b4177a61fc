package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TaskPriority ranks a task inside its project
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "Low"
	TaskPriorityMedium TaskPriority = "Medium"
	TaskPriorityHigh   TaskPriority = "High"
)

// Valid reports whether p is one of the known priorities
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

// Task belongs to exactly one project. State false means pending, true means complete.
type Task struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name        string              `bson:"name" json:"name"`
	Description string              `bson:"description" json:"description"`
	State       bool                `bson:"state" json:"state"`
	Priority    TaskPriority        `bson:"priority" json:"priority"`
	Deadline    time.Time           `bson:"deadline" json:"deadline"`
	Project     primitive.ObjectID  `bson:"project" json:"project"`
	CompletedBy *primitive.ObjectID `bson:"completedBy,omitempty" json:"completed_by,omitempty"`
	CreatedAt   time.Time           `bson:"createdAt" json:"created_at"`
	UpdatedAt   time.Time           `bson:"updatedAt" json:"updated_at"`
}

// TaskInput is the editable part of a task. Project is only read on creation.
type TaskInput struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority"`
	Deadline    *time.Time   `json:"deadline,omitempty"`
	Project     string       `json:"project,omitempty"`
}

// TaskView is a task as listed inside a project
type TaskView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	State       bool         `json:"state"`
	Priority    TaskPriority `json:"priority"`
	Deadline    time.Time    `json:"deadline"`
	Project     string       `json:"project"`
	CompletedBy *UserRef     `json:"completed_by,omitempty"`
}

// View projects a task, resolving the completer when given
func (t *Task) View(completer *User) TaskView {
	view := TaskView{
		ID:          t.ID.Hex(),
		Name:        t.Name,
		Description: t.Description,
		State:       t.State,
		Priority:    t.Priority,
		Deadline:    t.Deadline,
		Project:     t.Project.Hex(),
	}
	if completer != nil {
		view.CompletedBy = &UserRef{ID: completer.ID.Hex(), Name: completer.Name}
	}
	return view
}

// TaskDetail is a task re-resolved with its project and completer
type TaskDetail struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	State       bool         `json:"state"`
	Priority    TaskPriority `json:"priority"`
	Deadline    time.Time    `json:"deadline"`
	Project     ProjectRef   `json:"project"`
	CompletedBy *UserRef     `json:"completed_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Detail projects a task together with its project and completer
func (t *Task) Detail(project *Project, completer *User) TaskDetail {
	detail := TaskDetail{
		ID:          t.ID.Hex(),
		Name:        t.Name,
		Description: t.Description,
		State:       t.State,
		Priority:    t.Priority,
		Deadline:    t.Deadline,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if project != nil {
		detail.Project = project.Ref()
	} else {
		detail.Project = ProjectRef{ID: t.Project.Hex(), Collaborators: []string{}}
	}
	if completer != nil {
		detail.CompletedBy = &UserRef{ID: completer.ID.Hex(), Name: completer.Name}
	}
	return detail
}
