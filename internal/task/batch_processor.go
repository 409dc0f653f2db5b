package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coursebay/coursebay/backend/go-services/internal/lock"
	"github.com/coursebay/coursebay/backend/go-services/pkg/logger"
	"github.com/coursebay/coursebay/backend/go-services/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchConfig tunes the BatchProcessor.
type BatchConfig struct {
	// Concurrency is the number of tasks run in parallel per batch.
	Concurrency int
	// ChunkSize is the number of unprocessed task ids fetched per round.
	ChunkSize int
	LockTTL   time.Duration
}

// BatchResult summarizes one BatchProcessor.Process call.
type BatchResult struct {
	Outcomes  map[Outcome]int
	Completed bool
	// Last is the id of the last task in the chunk, "" when the chunk was
	// empty. Passing it back continues the pass over the batch.
	Last string
}

// BatchProcessor drives the tasks of one batch through the TaskProcessor and
// closes the batch once no unprocessed task is left.
type BatchProcessor struct {
	batches BatchStore
	tasks   TaskStore
	locks   lock.Store
	runner  *TaskProcessor
	cfg     BatchConfig
	now     func() time.Time
	log     *zap.SugaredLogger
}

func NewBatchProcessor(batches BatchStore, tasks TaskStore, locks lock.Store, runner *TaskProcessor, cfg BatchConfig) *BatchProcessor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 50
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	return &BatchProcessor{
		batches: batches,
		tasks:   tasks,
		locks:   locks,
		runner:  runner,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logger.Named("batch"),
	}
}

// Process works through the next chunk of unprocessed tasks whose id sorts
// after the given one. Once the pass runs out of tasks it tries to close the
// batch, which only succeeds when no unprocessed task is left at all, so a
// failed task gets at most one attempt per pass.
func (b *BatchProcessor) Process(ctx context.Context, batchID, after string) (BatchResult, error) {
	res := BatchResult{Outcomes: map[Outcome]int{}}

	batch, err := b.batches.GetBatch(ctx, batchID)
	if err != nil {
		return res, fmt.Errorf("load batch %s: %w", batchID, err)
	}
	if batch.Completed() {
		res.Completed = true
		return res, nil
	}

	ids, err := b.tasks.ListUnprocessedIDs(ctx, batchID, after, b.cfg.ChunkSize)
	if err != nil {
		return res, fmt.Errorf("list tasks of batch %s: %w", batchID, err)
	}
	if len(ids) == 0 {
		done, err := b.complete(ctx, batch)
		res.Completed = done
		return res, err
	}

	res.Last = ids[len(ids)-1]

	outcomes := make([]Outcome, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			o, err := b.runner.Process(gctx, id, batch.BatchParams)
			if errors.Is(err, ErrLockLost) {
				outcomes[i] = OutcomeLocked
				return nil
			}
			outcomes[i] = o
			return err
		})
	}
	err = g.Wait()
	for _, o := range outcomes {
		if o != "" {
			res.Outcomes[o]++
		}
	}
	if err != nil {
		return res, fmt.Errorf("process batch %s: %w", batchID, err)
	}
	return res, nil
}

// complete closes the batch under the batch lock. Another worker holding the
// lock is treated as "not completed yet"; the next round retries.
func (b *BatchProcessor) complete(ctx context.Context, batch *Batch) (bool, error) {
	l, err := b.locks.TakeLock(ctx, lock.BatchLockKey(batch.ID), b.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLockTaken) {
			return false, nil
		}
		return false, fmt.Errorf("take lock for batch %s: %w", batch.ID, err)
	}
	defer func() {
		if err := b.locks.ReleaseLock(context.WithoutCancel(ctx), l); err != nil {
			b.log.Warnw("failed to release batch lock", "batchId", batch.ID, "error", err)
		}
	}()

	// tasks skipped by the pass, or added or reset since, keep the batch open
	ids, err := b.tasks.ListUnprocessedIDs(ctx, batch.ID, "", 1)
	if err != nil {
		return false, fmt.Errorf("recheck batch %s: %w", batch.ID, err)
	}
	if len(ids) > 0 {
		return false, nil
	}

	tasks, err := b.tasks.ListByBatch(ctx, batch.ID)
	if err != nil {
		return false, fmt.Errorf("list tasks of batch %s: %w", batch.ID, err)
	}
	failed := 0
	for _, t := range tasks {
		if t.Failed() {
			failed++
		}
	}
	closed, err := b.batches.CompleteBatch(ctx, batch.ID, b.now(), len(tasks), failed)
	if err != nil {
		return false, err
	}
	if closed {
		metrics.BatchesCompleted.WithLabelValues(string(batch.BatchType)).Inc()
		b.log.Infow("batch completed", "batchId", batch.ID, "batchType", batch.BatchType, "tasks", len(tasks), "failed", failed)
	}
	return true, nil
}
