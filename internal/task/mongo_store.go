package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements TaskStore and BatchStore on two collections.
type MongoStore struct {
	tasks   *mongo.Collection
	batches *mongo.Collection
}

func NewMongoStore(tasks, batches *mongo.Collection) *MongoStore {
	return &MongoStore{tasks: tasks, batches: batches}
}

// EnsureIndexes creates the indexes the worker queries rely on.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := m.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "batchId", Value: 1}, {Key: "processed", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create tasks index: %w", err)
	}
	if _, err := m.batches.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "completedOn", Value: 1}, {Key: "createdOn", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create batches index: %w", err)
	}
	return nil
}

func (m *MongoStore) CreateTasks(ctx context.Context, tasks []*Task) error {
	if len(tasks) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(tasks))
	for _, t := range tasks {
		docs = append(docs, t)
	}
	if _, err := m.tasks.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert tasks: %w", err)
	}
	return nil
}

func (m *MongoStore) GetTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := m.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (m *MongoStore) GetUnprocessedTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := m.tasks.FindOne(ctx, bson.M{"_id": id, "processed": false}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (m *MongoStore) UpdateTask(ctx context.Context, t *Task) error {
	res, err := m.tasks.UpdateOne(ctx, bson.M{"_id": t.ID}, bson.M{"$set": bson.M{
		"processed": t.Processed,
		"attempts":  t.Attempts,
	}})
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStore) ListByBatch(ctx context.Context, batchID string) ([]*Task, error) {
	cur, err := m.tasks.Find(ctx, bson.M{"batchId": batchID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Task{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoStore) ListUnprocessedIDs(ctx context.Context, batchID, after string, limit int) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.M{"_id": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	filter := bson.M{"batchId": batchID, "processed": false}
	if after != "" {
		filter["_id"] = bson.M{"$gt": after}
	}
	cur, err := m.tasks.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	ids := []string{}
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, cur.Err()
}

func (m *MongoStore) DeleteByBatch(ctx context.Context, batchID string) error {
	_, err := m.tasks.DeleteMany(ctx, bson.M{"batchId": batchID})
	return err
}

func (m *MongoStore) CreateBatch(ctx context.Context, b *Batch) error {
	if _, err := m.batches.InsertOne(ctx, b); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (m *MongoStore) GetBatch(ctx context.Context, id string) (*Batch, error) {
	var b Batch
	if err := m.batches.FindOne(ctx, bson.M{"_id": id}).Decode(&b); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (m *MongoStore) ListBatches(ctx context.Context, batchType BatchType) ([]*Batch, error) {
	filter := bson.M{}
	if batchType != "" {
		filter["batchType"] = batchType
	}
	return m.findBatches(ctx, filter, -1)
}

func (m *MongoStore) ListUncompleted(ctx context.Context) ([]*Batch, error) {
	return m.findBatches(ctx, bson.M{"completedOn": nil}, 1)
}

func (m *MongoStore) findBatches(ctx context.Context, filter bson.M, order int) ([]*Batch, error) {
	cur, err := m.batches.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdOn", Value: order}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*Batch{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoStore) HasUncompleted(ctx context.Context, batchType BatchType) (bool, error) {
	n, err := m.batches.CountDocuments(ctx, bson.M{"batchType": batchType, "completedOn": nil}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *MongoStore) CompleteBatch(ctx context.Context, id string, completedOn time.Time, taskCount, failedTaskCount int) (bool, error) {
	res, err := m.batches.UpdateOne(ctx,
		bson.M{"_id": id, "completedOn": nil},
		bson.M{"$set": bson.M{
			"completedOn":     completedOn,
			"taskCount":       taskCount,
			"failedTaskCount": failedTaskCount,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("complete batch %s: %w", id, err)
	}
	return res.MatchedCount > 0, nil
}
