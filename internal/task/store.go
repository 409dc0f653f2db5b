package task

import (
	"context"
	"time"
)

// TaskStore persists tasks.
type TaskStore interface {
	CreateTasks(ctx context.Context, tasks []*Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	// GetUnprocessedTask returns (nil, nil) when the task does not exist or
	// has already been processed.
	GetUnprocessedTask(ctx context.Context, id string) (*Task, error)
	// UpdateTask persists the attempts and processed flag of t.
	UpdateTask(ctx context.Context, t *Task) error
	ListByBatch(ctx context.Context, batchID string) ([]*Task, error)
	// ListUnprocessedIDs returns up to limit unprocessed task ids of the batch
	// in id order, starting after the id after ("" starts at the beginning).
	ListUnprocessedIDs(ctx context.Context, batchID, after string, limit int) ([]string, error)
	// DeleteByBatch removes the tasks of a batch that was never stored.
	DeleteByBatch(ctx context.Context, batchID string) error
}

// BatchStore persists batches.
type BatchStore interface {
	CreateBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, id string) (*Batch, error)
	// ListBatches returns batches newest first; an empty batchType lists all.
	ListBatches(ctx context.Context, batchType BatchType) ([]*Batch, error)
	// ListUncompleted returns open batches oldest first.
	ListUncompleted(ctx context.Context) ([]*Batch, error)
	HasUncompleted(ctx context.Context, batchType BatchType) (bool, error)
	// CompleteBatch closes the batch; it returns false when the batch was
	// already completed.
	CompleteBatch(ctx context.Context, id string, completedOn time.Time, taskCount, failedTaskCount int) (bool, error)
}

// Store is implemented by backends that hold both tasks and batches.
type Store interface {
	TaskStore
	BatchStore
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*MongoStore)(nil)
)
