package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"Minerva_2.0/internal/models"
)

// TaskRecorder persists the lifecycle of dispatched tasks for audit and
// replay. Recording is best-effort: the supervisor works without it.
type TaskRecorder interface {
	RecordSubmission(ctx context.Context, record *models.TaskRecord) error
	RecordCompletion(ctx context.Context, taskID string, status models.TaskStatus, resultOrError interface{}, cached bool) error
}

// MongoTaskStore is a TaskRecorder backed by MongoDB.
type MongoTaskStore struct {
	collection *mongo.Collection
}

// NewMongoTaskStore creates a store on the given database and collection.
func NewMongoTaskStore(db *mongo.Database, collectionName string) *MongoTaskStore {
	return &MongoTaskStore{collection: db.Collection(collectionName)}
}

// RecordSubmission upserts the pending record keyed by the envelope's
// message id.
func (s *MongoTaskStore) RecordSubmission(ctx context.Context, record *models.TaskRecord) error {
	filter := bson.M{"_id": record.ID}
	update := bson.M{"$set": record}
	_, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// RecordCompletion finds a task by its ID and updates its status,
// result/error, and completion time.
func (s *MongoTaskStore) RecordCompletion(ctx context.Context, taskID string, status models.TaskStatus, resultOrError interface{}, cached bool) error {
	fields := bson.M{
		"status":       status,
		"cached":       cached,
		"completed_at": time.Now(),
	}
	if status == models.TaskStatusSuccess {
		fields["result"] = resultOrError
	} else {
		fields["error"] = resultOrError
	}

	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": taskID}, bson.M{"$set": fields})
	return err
}

// NoopTaskRecorder is used when task persistence is disabled in config.
type NoopTaskRecorder struct{}

func (NoopTaskRecorder) RecordSubmission(ctx context.Context, record *models.TaskRecord) error {
	return nil
}

func (NoopTaskRecorder) RecordCompletion(ctx context.Context, taskID string, status models.TaskStatus, resultOrError interface{}, cached bool) error {
	return nil
}
