package task

import (
	"context"
	"testing"
	"time"

	"github.com/coursebay/coursebay/backend/go-services/internal/document"
	"github.com/coursebay/coursebay/backend/go-services/internal/document/repository"
	"github.com/coursebay/coursebay/backend/go-services/internal/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	store *MemoryStore
	docs  *repository.MemoryRepo
	svc   *Service
	calls map[string]int
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{store: NewMemoryStore(), docs: repository.NewMemoryRepo(), calls: map[string]int{}}
	locks := lock.NewMemoryStore()
	count := ProcessorFunc(func(_ context.Context, tk *Task, _ BatchParams) error {
		f.calls[tk.TaskParams.Key]++
		return nil
	})
	runner := NewTaskProcessor(f.store, locks, map[TaskType]Processor{
		TypeDocumentImport:            count,
		TypeDocumentRegeneration:      count,
		TypeCdnResourcesConsolidation: count,
	}, ProcessorConfig{})
	f.svc = NewService(f.store, f.store, f.docs, locks, runner, []string{"upstream"})
	return f
}

func TestService_CreateRegenerationBatch(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	for _, name := range []string{"a.md", "b.md"} {
		_, err := f.docs.Create(ctx, &document.Document{Name: name, Content: "x"})
		require.NoError(t, err)
	}

	b, err := f.svc.CreateBatch(ctx, "admin", BatchDocumentRegeneration, BatchParams{ImportSourceName: "ignored"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "admin", b.CreatedBy)
	assert.Equal(t, 2, b.TaskCount)
	assert.Empty(t, b.BatchParams.ImportSourceName)

	details, err := f.svc.GetBatchDetails(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, details.Tasks, 2)
	for _, tk := range details.Tasks {
		assert.Equal(t, TypeDocumentRegeneration, tk.TaskType)
		assert.NotEmpty(t, tk.TaskParams.Key)
	}
	assert.Equal(t, Progress{Total: 2}, details.Progress)

	_, err = f.svc.CreateBatch(ctx, "admin", BatchDocumentRegeneration, BatchParams{}, nil)
	require.ErrorIs(t, err, ErrBatchInProgress)

	// other types are independent
	_, err = f.svc.CreateBatch(ctx, "admin", BatchCdnResourcesConsolidation, BatchParams{}, nil)
	require.NoError(t, err)
}

func TestService_CreateImportBatch(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	require.NoError(t, f.docs.Save(ctx, &document.Document{ID: "doc1", Name: "doc1.md", Revision: 4}))

	items := []ImportItem{{Key: "doc1", Revision: 6}, {Key: "doc2", Revision: 1}, {Key: "doc1", Revision: 6}}
	b, err := f.svc.CreateBatch(ctx, "admin", BatchDocumentImport, BatchParams{ImportSourceName: "upstream"}, items)
	require.NoError(t, err)
	assert.Equal(t, 2, b.TaskCount)
	assert.Equal(t, "upstream", b.BatchParams.ImportSourceName)

	details, err := f.svc.GetBatchDetails(ctx, b.ID)
	require.NoError(t, err)
	byKey := map[string]TaskParams{}
	for _, tk := range details.Tasks {
		byKey[tk.TaskParams.Key] = tk.TaskParams
	}
	assert.Equal(t, TaskParams{Key: "doc1", ImportedRevision: 4, ImportableRevision: 6}, byKey["doc1"])
	assert.Equal(t, TaskParams{Key: "doc2", ImportableRevision: 1}, byKey["doc2"])
}

func TestService_CreateBatchValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateBatch(ctx, "admin", BatchType("bogus"), BatchParams{}, nil)
	require.ErrorIs(t, err, ErrInvalidBatch)

	_, err = f.svc.CreateBatch(ctx, "admin", BatchDocumentImport, BatchParams{ImportSourceName: "nowhere"}, []ImportItem{{Key: "a", Revision: 1}})
	require.ErrorIs(t, err, ErrInvalidBatch)

	_, err = f.svc.CreateBatch(ctx, "admin", BatchDocumentImport, BatchParams{ImportSourceName: "upstream"}, nil)
	require.ErrorIs(t, err, ErrInvalidBatch)

	_, err = f.svc.CreateBatch(ctx, "admin", BatchDocumentImport, BatchParams{ImportSourceName: "upstream"}, []ImportItem{{Key: "", Revision: 1}})
	require.ErrorIs(t, err, ErrInvalidBatch)

	_, err = f.svc.ListBatches(ctx, BatchType("bogus"))
	require.ErrorIs(t, err, ErrInvalidBatch)

	// rejected requests leave nothing behind
	list, err := f.svc.ListBatches(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_ProcessTask(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, err := f.docs.Create(ctx, &document.Document{Name: "a.md"})
	require.NoError(t, err)

	b, err := f.svc.CreateBatch(ctx, "admin", BatchCdnResourcesConsolidation, BatchParams{}, nil)
	require.NoError(t, err)
	details, err := f.svc.GetBatchDetails(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, details.Tasks, 1)
	id := details.Tasks[0].ID

	out, err := f.svc.ProcessTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, out)

	out, err = f.svc.ProcessTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, out)

	details, _ = f.svc.GetBatchDetails(ctx, b.ID)
	assert.Equal(t, Progress{Total: 1, Processed: 1, Percent: 100}, details.Progress)

	_, err = f.svc.ProcessTask(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.GetBatchDetails(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

type hookedTaskStore struct {
	*MemoryStore
	afterCreate func()
	createErr   error
}

func (h *hookedTaskStore) CreateTasks(ctx context.Context, tasks []*Task) error {
	if h.createErr != nil {
		return h.createErr
	}
	if err := h.MemoryStore.CreateTasks(ctx, tasks); err != nil {
		return err
	}
	if h.afterCreate != nil {
		h.afterCreate()
	}
	return nil
}

type failingBatchStore struct{ *MemoryStore }

func (failingBatchStore) CreateBatch(context.Context, *Batch) error { return assert.AnError }

func TestService_PollDuringCreationDoesNotCloseBatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	docs := repository.NewMemoryRepo()
	_, err := docs.Create(ctx, &document.Document{Name: "a.md", Content: "x"})
	require.NoError(t, err)

	locks := lock.NewMemoryStore()
	var calls int
	runner := NewTaskProcessor(store, locks, map[TaskType]Processor{
		TypeDocumentRegeneration: ProcessorFunc(func(context.Context, *Task, BatchParams) error {
			calls++
			return nil
		}),
	}, ProcessorConfig{})
	poller := NewPoller(store, NewBatchProcessor(store, store, locks, runner, BatchConfig{}), time.Hour)

	tasks := &hookedTaskStore{MemoryStore: store, afterCreate: func() {
		require.NoError(t, poller.RunOnce(ctx))
	}}
	svc := NewService(store, tasks, docs, locks, runner, nil)

	b, err := svc.CreateBatch(ctx, "admin", BatchDocumentRegeneration, BatchParams{}, nil)
	require.NoError(t, err)
	got, err := store.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	require.False(t, got.Completed())

	require.NoError(t, poller.RunOnce(ctx))
	got, _ = store.GetBatch(ctx, b.ID)
	require.True(t, got.Completed())
	assert.Equal(t, 1, got.TaskCount)
	assert.Equal(t, 1, calls)
}

func TestService_FailedCreationLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	docs := repository.NewMemoryRepo()
	_, err := docs.Create(ctx, &document.Document{Name: "a.md", Content: "x"})
	require.NoError(t, err)
	locks := lock.NewMemoryStore()
	runner := NewTaskProcessor(store, locks, nil, ProcessorConfig{})

	t.Run("tasks insert fails", func(t *testing.T) {
		svc := NewService(store, &hookedTaskStore{MemoryStore: store, createErr: assert.AnError}, docs, locks, runner, nil)
		_, err := svc.CreateBatch(ctx, "admin", BatchDocumentRegeneration, BatchParams{}, nil)
		require.ErrorIs(t, err, assert.AnError)

		batches, err := store.ListBatches(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, batches)
	})

	t.Run("batch insert fails", func(t *testing.T) {
		svc := NewService(failingBatchStore{store}, store, docs, locks, runner, nil)
		_, err := svc.CreateBatch(ctx, "admin", BatchDocumentRegeneration, BatchParams{}, nil)
		require.ErrorIs(t, err, assert.AnError)

		store.mu.RLock()
		defer store.mu.RUnlock()
		assert.Empty(t, store.tasks, "tasks of the unsaved batch are removed")
	})

	// nothing blocks a later attempt
	svc := NewService(store, store, docs, locks, runner, nil)
	b, err := svc.CreateBatch(ctx, "admin", BatchDocumentRegeneration, BatchParams{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, b.TaskCount)
}
