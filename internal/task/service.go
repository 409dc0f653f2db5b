package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coursebay/coursebay/backend/go-services/internal/document"
	"github.com/coursebay/coursebay/backend/go-services/internal/document/repository"
	"github.com/coursebay/coursebay/backend/go-services/internal/lock"
	"github.com/coursebay/coursebay/backend/go-services/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Documents is the part of the document repository batch creation needs.
type Documents interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// ImportItem requests the import of one remote document at a revision.
type ImportItem struct {
	Key      string `json:"key" binding:"required"`
	Revision int    `json:"revision" binding:"min=1"`
}

// Progress counts the tasks of a batch.
type Progress struct {
	Total     int     `json:"total"`
	Processed int     `json:"processed"`
	Failed    int     `json:"failed"`
	Percent   float64 `json:"percent"`
}

// BatchDetails is a batch together with its tasks.
type BatchDetails struct {
	Batch    *Batch   `json:"batch"`
	Tasks    []*Task  `json:"tasks"`
	Progress Progress `json:"progress"`
}

// Service creates batches and exposes their state.
type Service struct {
	batches       BatchStore
	tasks         TaskStore
	docs          Documents
	locks         lock.Store
	runner        *TaskProcessor
	importSources map[string]bool
	now           func() time.Time
	log           *zap.SugaredLogger
}

func NewService(batches BatchStore, tasks TaskStore, docs Documents, locks lock.Store, runner *TaskProcessor, importSources []string) *Service {
	known := make(map[string]bool, len(importSources))
	for _, name := range importSources {
		known[name] = true
	}
	return &Service{
		batches:       batches,
		tasks:         tasks,
		docs:          docs,
		locks:         locks,
		runner:        runner,
		importSources: known,
		now:           func() time.Time { return time.Now().UTC() },
		log:           logger.Named("tasks"),
	}
}

// CreateBatch creates a batch and its tasks. Only one uncompleted batch per
// type may exist at a time.
func (s *Service) CreateBatch(ctx context.Context, createdBy string, batchType BatchType, params BatchParams, items []ImportItem) (*Batch, error) {
	if !batchType.Valid() {
		return nil, fmt.Errorf("%w: unknown batch type %q", ErrInvalidBatch, batchType)
	}
	if batchType == BatchDocumentImport {
		if !s.importSources[params.ImportSourceName] {
			return nil, fmt.Errorf("%w: unknown import source %q", ErrInvalidBatch, params.ImportSourceName)
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: no documents to import", ErrInvalidBatch)
		}
	}

	// serializes the in-progress check against concurrent requests
	l, err := s.locks.TakeLock(ctx, "batch-type:"+string(batchType), time.Minute)
	if err != nil {
		if errors.Is(err, lock.ErrLockTaken) {
			return nil, ErrBatchInProgress
		}
		return nil, err
	}
	defer func() {
		if err := s.locks.ReleaseLock(context.WithoutCancel(ctx), l); err != nil {
			s.log.Warnw("failed to release batch type lock", "batchType", batchType, "error", err)
		}
	}()

	busy, err := s.batches.HasUncompleted(ctx, batchType)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, ErrBatchInProgress
	}

	batch := &Batch{
		ID:          newID(),
		CreatedBy:   createdBy,
		CreatedOn:   s.now(),
		BatchType:   batchType,
		BatchParams: params,
	}
	if batchType != BatchDocumentImport {
		batch.BatchParams = BatchParams{}
	}

	tasks, err := s.buildTasks(ctx, batch, items)
	if err != nil {
		return nil, err
	}
	batch.TaskCount = len(tasks)

	// workers only reach tasks through an open batch, so the batch goes last
	if err := s.tasks.CreateTasks(ctx, tasks); err != nil {
		s.discardTasks(ctx, batch.ID)
		return nil, fmt.Errorf("create tasks: %w", err)
	}
	if err := s.batches.CreateBatch(ctx, batch); err != nil {
		s.discardTasks(ctx, batch.ID)
		return nil, fmt.Errorf("create batch: %w", err)
	}
	s.log.Infow("batch created", "batchId", batch.ID, "batchType", batchType, "tasks", len(tasks), "createdBy", createdBy)
	return batch, nil
}

func (s *Service) discardTasks(ctx context.Context, batchID string) {
	if err := s.tasks.DeleteByBatch(context.WithoutCancel(ctx), batchID); err != nil {
		s.log.Errorw("failed to remove tasks of unsaved batch", "batchId", batchID, "error", err)
	}
}

func (s *Service) buildTasks(ctx context.Context, batch *Batch, items []ImportItem) ([]*Task, error) {
	taskType := batch.BatchType.TaskType()
	newTask := func(p TaskParams) *Task {
		return &Task{ID: newID(), BatchID: batch.ID, TaskType: taskType, Attempts: []Attempt{}, TaskParams: p}
	}

	if batch.BatchType != BatchDocumentImport {
		ids, err := s.docs.ListIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		tasks := make([]*Task, 0, len(ids))
		for _, id := range ids {
			tasks = append(tasks, newTask(TaskParams{Key: id}))
		}
		return tasks, nil
	}

	tasks := make([]*Task, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.Key == "" || it.Revision < 1 {
			return nil, fmt.Errorf("%w: import item needs a key and a positive revision", ErrInvalidBatch)
		}
		if seen[it.Key] {
			continue
		}
		seen[it.Key] = true

		imported := 0
		doc, err := s.docs.Get(ctx, it.Key)
		switch {
		case err == nil:
			imported = doc.Revision
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("load document %s: %w", it.Key, err)
		}
		tasks = append(tasks, newTask(TaskParams{Key: it.Key, ImportedRevision: imported, ImportableRevision: it.Revision}))
	}
	return tasks, nil
}

func (s *Service) GetBatch(ctx context.Context, id string) (*Batch, error) {
	return s.batches.GetBatch(ctx, id)
}

// GetBatchDetails returns the batch, its tasks and a progress summary.
func (s *Service) GetBatchDetails(ctx context.Context, id string) (*BatchDetails, error) {
	batch, err := s.batches.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListByBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BatchDetails{Batch: batch, Tasks: tasks, Progress: progressOf(tasks)}, nil
}

func (s *Service) ListBatches(ctx context.Context, batchType BatchType) ([]*Batch, error) {
	if batchType != "" && !batchType.Valid() {
		return nil, fmt.Errorf("%w: unknown batch type %q", ErrInvalidBatch, batchType)
	}
	return s.batches.ListBatches(ctx, batchType)
}

// ProcessTask runs one task immediately, outside the poller.
func (s *Service) ProcessTask(ctx context.Context, taskID string) (Outcome, error) {
	t, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	batch, err := s.batches.GetBatch(ctx, t.BatchID)
	if err != nil {
		return "", fmt.Errorf("load batch of task %s: %w", taskID, err)
	}
	return s.runner.Process(ctx, taskID, batch.BatchParams)
}

func progressOf(tasks []*Task) Progress {
	p := Progress{Total: len(tasks)}
	for _, t := range tasks {
		if t.Processed {
			p.Processed++
		}
		if t.Failed() {
			p.Failed++
		}
	}
	if p.Total == 0 {
		p.Percent = 100
	} else {
		p.Percent = float64(p.Processed) * 100 / float64(p.Total)
	}
	return p
}

// newID returns a time-ordered id so stores can list tasks in creation order.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
