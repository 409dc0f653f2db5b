package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coursebay/coursebay/backend/go-services/internal/lock"
	"github.com/coursebay/coursebay/backend/go-services/pkg/logger"
	"github.com/coursebay/coursebay/backend/go-services/pkg/metrics"
	"go.uber.org/zap"
)

// Processor performs the work for one task type. Implementations must be
// idempotent: a task may be retried after a failure or resumed after a crash.
type Processor interface {
	Process(ctx context.Context, t *Task, params BatchParams) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, t *Task, params BatchParams) error

func (f ProcessorFunc) Process(ctx context.Context, t *Task, params BatchParams) error {
	return f(ctx, t, params)
}

// Outcome describes what a call to TaskProcessor.Process did.
type Outcome string

const (
	OutcomeLocked           Outcome = "locked"
	OutcomeAlreadyProcessed Outcome = "already-processed"
	OutcomeSucceeded        Outcome = "succeeded"
	OutcomeFailed           Outcome = "failed"
	OutcomeExhausted        Outcome = "exhausted"
)

// ProcessorConfig tunes the TaskProcessor.
type ProcessorConfig struct {
	MaxAttempts int
	// LockTTL is renewed every half period while a processor runs.
	LockTTL time.Duration
}

// DefaultProcessorConfig returns the defaults used when config values are missing.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{MaxAttempts: DefaultMaxAttempts, LockTTL: 2 * time.Minute}
}

// TaskProcessor runs a single task under its lock: it loads the unprocessed
// record, dispatches it by type, records the attempt and persists the result.
type TaskProcessor struct {
	tasks      TaskStore
	locks      lock.Store
	processors map[TaskType]Processor
	cfg        ProcessorConfig
	now        func() time.Time
	log        *zap.SugaredLogger
}

func NewTaskProcessor(tasks TaskStore, locks lock.Store, processors map[TaskType]Processor, cfg ProcessorConfig) *TaskProcessor {
	def := DefaultProcessorConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	return &TaskProcessor{
		tasks:      tasks,
		locks:      locks,
		processors: processors,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.Named("task"),
	}
}

// Process runs the task with the given id. A task locked by another worker
// or already processed is skipped without error. Errors are only returned for
// store failures and cancellation; processor failures are recorded as
// attempts on the task.
func (p *TaskProcessor) Process(ctx context.Context, taskID string, params BatchParams) (Outcome, error) {
	l, err := p.locks.TakeLock(ctx, lock.TaskLockKey(taskID), p.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLockTaken) {
			p.log.Debugw("task is locked by another worker, skipping", "taskId", taskID)
			metrics.TaskLockContended.Inc()
			return OutcomeLocked, nil
		}
		return "", fmt.Errorf("take lock for task %s: %w", taskID, err)
	}
	defer func() {
		if err := p.locks.ReleaseLock(context.WithoutCancel(ctx), l); err != nil {
			p.log.Warnw("failed to release task lock", "taskId", taskID, "error", err)
		}
	}()

	t, err := p.tasks.GetUnprocessedTask(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("load task %s: %w", taskID, err)
	}
	if t == nil {
		p.log.Debugw("task was already processed", "taskId", taskID)
		return OutcomeAlreadyProcessed, nil
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("task %s: %w", taskID, err)
	}

	attempt := Attempt{StartedOn: p.now(), Errors: []SerializedError{}}
	runCtx, stopKeeper := p.keepLock(ctx, l)
	procErr := p.dispatch(runCtx, t, params)
	if stopKeeper() {
		// the new holder owns the attempt history now
		p.log.Warnw("task lock lost while running, dropping attempt", "taskId", taskID)
		return "", fmt.Errorf("task %s: %w", taskID, ErrLockLost)
	}
	if procErr != nil && ctx.Err() != nil {
		// interrupted work does not consume an attempt
		return "", fmt.Errorf("task %s interrupted: %w", taskID, ctx.Err())
	}
	attempt.CompletedOn = p.now()
	if procErr != nil {
		attempt.Errors = append(attempt.Errors, SerializeError(procErr))
	}
	t.Attempts = append(t.Attempts, attempt)
	t.Processed = procErr == nil || len(t.Attempts) >= p.cfg.MaxAttempts

	if err := p.tasks.UpdateTask(context.WithoutCancel(ctx), t); err != nil {
		return "", fmt.Errorf("persist task %s: %w", taskID, err)
	}

	outcome := OutcomeSucceeded
	switch {
	case procErr != nil && t.Processed:
		outcome = OutcomeExhausted
		p.log.Warnw("task failed, giving up", "taskId", taskID, "taskType", t.TaskType, "attempts", len(t.Attempts), "error", procErr)
	case procErr != nil:
		outcome = OutcomeFailed
		p.log.Infow("task failed, will retry", "taskId", taskID, "taskType", t.TaskType, "attempts", len(t.Attempts), "error", procErr)
	default:
		p.log.Debugw("task succeeded", "taskId", taskID, "taskType", t.TaskType)
	}
	metrics.TasksProcessed.WithLabelValues(string(t.TaskType), string(outcome)).Inc()
	metrics.TaskDuration.WithLabelValues(string(t.TaskType)).Observe(attempt.CompletedOn.Sub(attempt.StartedOn).Seconds())
	return outcome, nil
}

// keepLock extends l every half TTL until the returned stop func is called.
// The run context is cancelled once the lock changes hands; stop reports
// whether that happened.
func (p *TaskProcessor) keepLock(ctx context.Context, l *lock.Lock) (context.Context, func() bool) {
	runCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.cfg.LockTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-runCtx.Done():
				return
			case <-ticker.C:
				err := p.locks.ExtendLock(runCtx, l, p.cfg.LockTTL)
				switch {
				case errors.Is(err, lock.ErrLockTaken):
					cancel(ErrLockLost)
					return
				case err != nil:
					p.log.Warnw("failed to extend task lock", "key", l.Key, "error", err)
				}
			}
		}
	}()
	return runCtx, func() bool {
		close(done)
		wg.Wait()
		lost := errors.Is(context.Cause(runCtx), ErrLockLost)
		cancel(nil)
		return lost
	}
}

func (p *TaskProcessor) dispatch(ctx context.Context, t *Task, params BatchParams) (err error) {
	proc, ok := p.processors[t.TaskType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTaskType, t.TaskType)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return proc.Process(ctx, t, params)
}
