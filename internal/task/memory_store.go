package task

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements TaskStore and BatchStore in process memory. Used
// when MongoDB is not configured and by unit tests.
type MemoryStore struct {
	mu      sync.RWMutex
	tasks   map[string]*Task
	order   []string
	batches map[string]*Batch
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task), batches: make(map[string]*Batch)}
}

func (m *MemoryStore) CreateTasks(_ context.Context, tasks []*Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tasks {
		if _, ok := m.tasks[t.ID]; !ok {
			m.order = append(m.order, t.ID)
		}
		m.tasks[t.ID] = t.Clone()
	}
	return nil
}

func (m *MemoryStore) GetTask(_ context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *MemoryStore) GetUnprocessedTask(_ context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok || t.Processed {
		return nil, nil
	}
	return t.Clone(), nil
}

func (m *MemoryStore) UpdateTask(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tasks[t.ID]
	if !ok {
		return ErrNotFound
	}
	next := cur.Clone()
	next.Processed = t.Processed
	next.Attempts = t.Clone().Attempts
	m.tasks[t.ID] = next
	return nil
}

func (m *MemoryStore) ListByBatch(_ context.Context, batchID string) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Task{}
	for _, id := range m.order {
		if t := m.tasks[id]; t.BatchID == batchID {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (m *MemoryStore) ListUnprocessedIDs(_ context.Context, batchID, after string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := []string{}
	for id, t := range m.tasks {
		if t.BatchID == batchID && !t.Processed && id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *MemoryStore) DeleteByBatch(_ context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.order[:0]
	for _, id := range m.order {
		if m.tasks[id].BatchID == batchID {
			delete(m.tasks, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return nil
}

func (m *MemoryStore) CreateBatch(_ context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[b.ID] = b.Clone()
	return nil
}

func (m *MemoryStore) GetBatch(_ context.Context, id string) (*Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (m *MemoryStore) ListBatches(_ context.Context, batchType BatchType) ([]*Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Batch{}
	for _, b := range m.batches {
		if batchType == "" || b.BatchType == batchType {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedOn.After(out[j].CreatedOn) })
	return out, nil
}

func (m *MemoryStore) ListUncompleted(_ context.Context) ([]*Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Batch{}
	for _, b := range m.batches {
		if !b.Completed() {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedOn.Before(out[j].CreatedOn) })
	return out, nil
}

func (m *MemoryStore) HasUncompleted(_ context.Context, batchType BatchType) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.batches {
		if b.BatchType == batchType && !b.Completed() {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CompleteBatch(_ context.Context, id string, completedOn time.Time, taskCount, failedTaskCount int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return false, ErrNotFound
	}
	if b.Completed() {
		return false, nil
	}
	b.CompletedOn = &completedOn
	b.TaskCount = taskCount
	b.FailedTaskCount = failedTaskCount
	return true, nil
}
