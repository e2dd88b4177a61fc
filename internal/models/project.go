package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Project is owned by exactly one creator and shared with collaborators
type Project struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name          string               `bson:"name" json:"name"`
	Description   string               `bson:"description" json:"description"`
	Client        string               `bson:"client" json:"client"`
	Deadline      time.Time            `bson:"deadline" json:"deadline"`
	Creator       primitive.ObjectID   `bson:"creator" json:"creator"`
	Collaborators []primitive.ObjectID `bson:"collaborators" json:"collaborators"`
	Tasks         []primitive.ObjectID `bson:"tasks" json:"-"`
	CreatedAt     time.Time            `bson:"createdAt" json:"created_at"`
	UpdatedAt     time.Time            `bson:"updatedAt" json:"updated_at"`
}

// HasCollaborator reports whether userID is in the collaborator set
func (p *Project) HasCollaborator(userID primitive.ObjectID) bool {
	for _, id := range p.Collaborators {
		if id == userID {
			return true
		}
	}
	return false
}

// HasTask reports whether taskID is in the project's task list
func (p *Project) HasTask(taskID primitive.ObjectID) bool {
	for _, id := range p.Tasks {
		if id == taskID {
			return true
		}
	}
	return false
}

// ProjectInput is the editable part of a project
type ProjectInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Client      string     `json:"client"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// ProjectRef is the project projection embedded in task responses
type ProjectRef struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Creator       string   `json:"creator"`
	Collaborators []string `json:"collaborators"`
}

// Ref converts a project into its reference projection
func (p *Project) Ref() ProjectRef {
	collaborators := make([]string, 0, len(p.Collaborators))
	for _, id := range p.Collaborators {
		collaborators = append(collaborators, id.Hex())
	}
	return ProjectRef{
		ID:            p.ID.Hex(),
		Name:          p.Name,
		Creator:       p.Creator.Hex(),
		Collaborators: collaborators,
	}
}

// ProjectDetail is a project with its tasks and collaborators resolved for display
type ProjectDetail struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Client        string     `json:"client"`
	Deadline      time.Time  `json:"deadline"`
	Creator       string     `json:"creator"`
	Collaborators []UserRef  `json:"collaborators"`
	Tasks         []TaskView `json:"tasks"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
