package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coursebay/coursebay/backend/go-services/internal/lock"
	"github.com/coursebay/coursebay/backend/go-services/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBatch(t *testing.T, store *MemoryStore, id string, n int, typ TaskType) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateBatch(ctx, &Batch{ID: id, BatchType: BatchType(typ), CreatedOn: time.Now()}))
	tasks := make([]*Task, 0, n)
	for i := 0; i < n; i++ {
		tasks = append(tasks, &Task{
			ID: fmt.Sprintf("%s-t%02d", id, i), BatchID: id, TaskType: typ,
			Attempts: []Attempt{}, TaskParams: TaskParams{Key: fmt.Sprintf("doc%d", i)},
		})
	}
	require.NoError(t, store.CreateTasks(ctx, tasks))
}

func TestBatchProcessor_RunsChunksThenCompletes(t *testing.T) {
	store := NewMemoryStore()
	locks := lock.NewMemoryStore()
	seedBatch(t, store, "b1", 5, TypeDocumentRegeneration)

	var calls atomic.Int32
	runner := NewTaskProcessor(store, locks, map[TaskType]Processor{
		TypeDocumentRegeneration: ProcessorFunc(func(_ context.Context, tk *Task, _ BatchParams) error {
			calls.Add(1)
			if tk.TaskParams.Key == "doc3" {
				return errors.New("broken document")
			}
			return nil
		}),
	}, ProcessorConfig{MaxAttempts: 1})
	bp := NewBatchProcessor(store, store, locks, runner, BatchConfig{Concurrency: 2, ChunkSize: 3})
	ctx := context.Background()

	completed := metrics.BatchesCompleted.WithLabelValues(string(BatchDocumentRegeneration))
	before := testutil.ToFloat64(completed)

	res, err := bp.Process(ctx, "b1", "")
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, "b1-t02", res.Last)
	assert.Equal(t, 3, res.Outcomes[OutcomeSucceeded])

	res, err = bp.Process(ctx, "b1", res.Last)
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, "b1-t04", res.Last)
	assert.Equal(t, 1, res.Outcomes[OutcomeExhausted])

	res, err = bp.Process(ctx, "b1", res.Last)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Empty(t, res.Last)
	assert.EqualValues(t, 5, calls.Load())
	assert.Equal(t, before+1, testutil.ToFloat64(completed))

	b, err := store.GetBatch(ctx, "b1")
	require.NoError(t, err)
	require.True(t, b.Completed())
	assert.Equal(t, 5, b.TaskCount)
	assert.Equal(t, 1, b.FailedTaskCount)
	assert.False(t, locks.IsLocked(lock.BatchLockKey("b1")))

	// completing again is harmless and not counted
	res, err = bp.Process(ctx, "b1", "")
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, before+1, testutil.ToFloat64(completed))
}

func TestBatchProcessor_PassEndKeepsRetryableTasksOpen(t *testing.T) {
	store := NewMemoryStore()
	locks := lock.NewMemoryStore()
	seedBatch(t, store, "b1", 2, TypeDocumentImport)

	runner := NewTaskProcessor(store, locks, map[TaskType]Processor{
		TypeDocumentImport: ProcessorFunc(func(_ context.Context, tk *Task, _ BatchParams) error {
			if tk.TaskParams.Key == "doc0" {
				return errors.New("source unavailable")
			}
			return nil
		}),
	}, ProcessorConfig{MaxAttempts: 3})
	bp := NewBatchProcessor(store, store, locks, runner, BatchConfig{ChunkSize: 10})
	ctx := context.Background()

	res, err := bp.Process(ctx, "b1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Outcomes[OutcomeFailed])
	assert.Equal(t, 1, res.Outcomes[OutcomeSucceeded])

	res, err = bp.Process(ctx, "b1", res.Last)
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Empty(t, res.Last)

	tk, err := store.GetTask(ctx, "b1-t00")
	require.NoError(t, err)
	assert.Len(t, tk.Attempts, 1)
	assert.False(t, tk.Processed)
}

func TestBatchProcessor_CompleteRaceNotCounted(t *testing.T) {
	store := NewMemoryStore()
	locks := lock.NewMemoryStore()
	seedBatch(t, store, "b1", 0, TypeCdnResourcesConsolidation)
	bp := NewBatchProcessor(store, store, locks, NewTaskProcessor(store, locks, nil, ProcessorConfig{}), BatchConfig{})
	ctx := context.Background()

	b, err := store.GetBatch(ctx, "b1")
	require.NoError(t, err)
	// another worker closed the batch after it was loaded
	closed, err := store.CompleteBatch(ctx, "b1", time.Now(), 0, 0)
	require.NoError(t, err)
	require.True(t, closed)

	completed := metrics.BatchesCompleted.WithLabelValues(string(BatchCdnResourcesConsolidation))
	before := testutil.ToFloat64(completed)
	done, err := bp.complete(ctx, b)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, before, testutil.ToFloat64(completed))
}

func TestBatchProcessor_EmptyBatchCompletes(t *testing.T) {
	store := NewMemoryStore()
	locks := lock.NewMemoryStore()
	seedBatch(t, store, "empty", 0, TypeCdnResourcesConsolidation)
	bp := NewBatchProcessor(store, store, locks, NewTaskProcessor(store, locks, nil, ProcessorConfig{}), BatchConfig{})

	res, err := bp.Process(context.Background(), "empty", "")
	require.NoError(t, err)
	assert.True(t, res.Completed)

	b, _ := store.GetBatch(context.Background(), "empty")
	assert.Equal(t, 0, b.TaskCount)
}

func TestBatchProcessor_BatchLockHeldDefersCompletion(t *testing.T) {
	store := NewMemoryStore()
	locks := lock.NewMemoryStore()
	seedBatch(t, store, "b1", 0, TypeDocumentRegeneration)
	_, err := locks.TakeLock(context.Background(), lock.BatchLockKey("b1"), time.Minute)
	require.NoError(t, err)

	bp := NewBatchProcessor(store, store, locks, NewTaskProcessor(store, locks, nil, ProcessorConfig{}), BatchConfig{})
	res, err := bp.Process(context.Background(), "b1", "")
	require.NoError(t, err)
	assert.False(t, res.Completed)

	b, _ := store.GetBatch(context.Background(), "b1")
	assert.False(t, b.Completed())
}

func TestBatchProcessor_UnknownBatch(t *testing.T) {
	store := NewMemoryStore()
	locks := lock.NewMemoryStore()
	bp := NewBatchProcessor(store, store, locks, NewTaskProcessor(store, locks, nil, ProcessorConfig{}), BatchConfig{})
	_, err := bp.Process(context.Background(), "nope", "")
	require.ErrorIs(t, err, ErrNotFound)
}
