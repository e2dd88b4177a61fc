package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"uptask/internal/database"
	"uptask/internal/models"
)

// MongoOperationJournal keeps pending multi-write operations in MongoDB
type MongoOperationJournal struct {
	collection *mongo.Collection
}

// NewMongoOperationJournal creates a journal backed by the pending_operations collection
func NewMongoOperationJournal(mongodb *database.MongoDB) *MongoOperationJournal {
	return &MongoOperationJournal{
		collection: mongodb.Collection(database.CollectionPendingOperations),
	}
}

// Begin records an operation before its first write
func (j *MongoOperationJournal) Begin(ctx context.Context, op *models.PendingOperation) error {
	now := time.Now()
	op.CreatedAt = now
	op.UpdatedAt = now
	if _, err := j.collection.InsertOne(ctx, op); err != nil {
		return fmt.Errorf("failed to journal operation %s: %w", op.ID, err)
	}
	return nil
}

// Complete drops a finished operation
func (j *MongoOperationJournal) Complete(ctx context.Context, id string) error {
	if _, err := j.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to complete operation %s: %w", id, err)
	}
	return nil
}

// MarkFailed bumps the attempt counter and keeps the last error for inspection
func (j *MongoOperationJournal) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := j.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{"lastError": msg, "updatedAt": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to mark operation %s: %w", id, err)
	}
	return nil
}

// ListPending returns operations untouched since before, oldest first
func (j *MongoOperationJournal) ListPending(ctx context.Context, before time.Time, limit int) ([]models.PendingOperation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := j.collection.Find(ctx, bson.M{"updatedAt": bson.M{"$lt": before}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}
	defer cursor.Close(ctx)

	var ops []models.PendingOperation
	if err := cursor.All(ctx, &ops); err != nil {
		return nil, fmt.Errorf("failed to decode pending operations: %w", err)
	}
	return ops, nil
}
