package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"uptask/internal/database"
	"uptask/internal/models"
)

// TaskStore handles MongoDB persistence for tasks
type TaskStore struct {
	collection *mongo.Collection
}

// NewTaskStore creates a new task store
func NewTaskStore(mongodb *database.MongoDB) *TaskStore {
	return &TaskStore{
		collection: mongodb.Collection(database.CollectionTasks),
	}
}

// Create inserts a new task. A preassigned id is kept so journaled operations can refer to it.
func (s *TaskStore) Create(ctx context.Context, task *models.Task) error {
	now := time.Now()
	if task.ID.IsZero() {
		task.ID = primitive.NewObjectID()
	}
	task.CreatedAt = now
	task.UpdatedAt = now

	if _, err := s.collection.InsertOne(ctx, task); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("task %s: %w", task.ID.Hex(), ErrDuplicate)
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// FindByID returns a task by id
func (s *TaskStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	var task models.Task
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&task); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("task: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// FindByIDs returns the tasks that exist among ids
func (s *TaskStore) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to get tasks by IDs: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return tasks, nil
}

// UpdateContent overwrites the editable fields of a task
func (s *TaskStore) UpdateContent(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = time.Now()
	return s.update(ctx, task.ID, bson.M{
		"$set": bson.M{
			"name":        task.Name,
			"description": task.Description,
			"priority":    task.Priority,
			"deadline":    task.Deadline,
			"updatedAt":   task.UpdatedAt,
		},
	})
}

// SetState overwrites the state and completer of a task
func (s *TaskStore) SetState(ctx context.Context, id primitive.ObjectID, state bool, completedBy *primitive.ObjectID) error {
	set := bson.M{
		"state":     state,
		"updatedAt": time.Now(),
	}
	update := bson.M{"$set": set}
	if completedBy != nil {
		set["completedBy"] = *completedBy
	} else {
		update["$unset"] = bson.M{"completedBy": ""}
	}
	return s.update(ctx, id, update)
}

func (s *TaskStore) update(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("task: %w", ErrNotFound)
	}
	return nil
}

// Delete removes a task if it exists
func (s *TaskStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// DeleteByProject removes every task of a project
func (s *TaskStore) DeleteByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"project": projectID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete project tasks: %w", err)
	}
	return result.DeletedCount, nil
}
