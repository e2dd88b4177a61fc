package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"uptask/internal/database"
	"uptask/internal/models"
)

// ProjectStore handles MongoDB persistence for projects
type ProjectStore struct {
	collection *mongo.Collection
}

// NewProjectStore creates a new project store
func NewProjectStore(mongodb *database.MongoDB) *ProjectStore {
	return &ProjectStore{
		collection: mongodb.Collection(database.CollectionProjects),
	}
}

// Create inserts a new project
func (s *ProjectStore) Create(ctx context.Context, project *models.Project) error {
	now := time.Now()
	if project.ID.IsZero() {
		project.ID = primitive.NewObjectID()
	}
	// Arrays must exist so $addToSet and $pull apply
	if project.Collaborators == nil {
		project.Collaborators = []primitive.ObjectID{}
	}
	if project.Tasks == nil {
		project.Tasks = []primitive.ObjectID{}
	}
	project.CreatedAt = now
	project.UpdatedAt = now

	if _, err := s.collection.InsertOne(ctx, project); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// FindByID returns a project by id
func (s *ProjectStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Project, error) {
	var project models.Project
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&project); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("project: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// FindCollaboratorOrCreator returns the projects visible to userID, oldest first
func (s *ProjectStore) FindCollaboratorOrCreator(ctx context.Context, userID primitive.ObjectID) ([]models.Project, error) {
	cursor, err := s.collection.Find(ctx, bson.M{
		"$or": bson.A{
			bson.M{"creator": userID},
			bson.M{"collaborators": userID},
		},
	}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer cursor.Close(ctx)

	projects := []models.Project{}
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}
	return projects, nil
}

// UpdateDetails overwrites the editable fields of a project
func (s *ProjectStore) UpdateDetails(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now()
	return s.update(ctx, project.ID, bson.M{
		"$set": bson.M{
			"name":        project.Name,
			"description": project.Description,
			"client":      project.Client,
			"deadline":    project.Deadline,
			"updatedAt":   project.UpdatedAt,
		},
	}, true)
}

// AddCollaborator adds userID to the collaborator set
func (s *ProjectStore) AddCollaborator(ctx context.Context, projectID, userID primitive.ObjectID) error {
	return s.update(ctx, projectID, bson.M{
		"$addToSet": bson.M{"collaborators": userID},
		"$set":      bson.M{"updatedAt": time.Now()},
	}, true)
}

// RemoveCollaborator pulls userID from the collaborator set
func (s *ProjectStore) RemoveCollaborator(ctx context.Context, projectID, userID primitive.ObjectID) error {
	return s.update(ctx, projectID, bson.M{
		"$pull": bson.M{"collaborators": userID},
		"$set":  bson.M{"updatedAt": time.Now()},
	}, true)
}

// AddTask appends taskID to the task list unless it is already there
func (s *ProjectStore) AddTask(ctx context.Context, projectID, taskID primitive.ObjectID) error {
	return s.update(ctx, projectID, bson.M{
		"$addToSet": bson.M{"tasks": taskID},
		"$set":      bson.M{"updatedAt": time.Now()},
	}, true)
}

// RemoveTask pulls taskID from the task list
func (s *ProjectStore) RemoveTask(ctx context.Context, projectID, taskID primitive.ObjectID) error {
	return s.update(ctx, projectID, bson.M{
		"$pull": bson.M{"tasks": taskID},
		"$set":  bson.M{"updatedAt": time.Now()},
	}, false)
}

// Delete removes a project if it exists
func (s *ProjectStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

func (s *ProjectStore) update(ctx context.Context, id primitive.ObjectID, update bson.M, mustMatch bool) error {
	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if mustMatch && result.MatchedCount == 0 {
		return fmt.Errorf("project: %w", ErrNotFound)
	}
	return nil
}
