package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coursebay/coursebay/backend/go-services/pkg/logger"
	"go.uber.org/zap"
)

// Poller periodically drains every uncompleted batch.
type Poller struct {
	batches  BatchStore
	runner   *BatchProcessor
	interval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     *zap.SugaredLogger
}

func NewPoller(batches BatchStore, runner *BatchProcessor, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		batches:  batches,
		runner:   runner,
		interval: interval,
		log:      logger.Named("poller"),
	}
}

// Start launches the polling loop. Calling Start on a running poller is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.run(ctx)
	p.log.Infow("task poller started", "interval", p.interval)
}

// Stop cancels in-flight work and waits for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Infow("task poller stopped")
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			p.log.Errorw("task poll failed", "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce walks the uncompleted batches oldest first and gives every
// unprocessed task one attempt. A failing batch is logged and the walk moves on to the next one.
func (p *Poller) RunOnce(ctx context.Context) error {
	open, err := p.batches.ListUncompleted(ctx)
	if err != nil {
		return fmt.Errorf("list uncompleted batches: %w", err)
	}
	var errs []error
	for _, b := range open {
		if err := p.drain(ctx, b.ID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warnw("batch processing failed", "batchId", b.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// drain makes one pass over the batch. Tasks that fail or are locked by
// another worker are left for the next tick.
func (p *Poller) drain(ctx context.Context, batchID string) error {
	after := ""
	for {
		res, err := p.runner.Process(ctx, batchID, after)
		if err != nil {
			return err
		}
		if res.Completed || res.Last == "" {
			return nil
		}
		after = res.Last
	}
}
