package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coursebay/coursebay/backend/go-services/internal/document"
	"github.com/google/uuid"
)

// MemoryRepo is an in-memory repository used when MongoDB is not configured
// and by unit tests.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*document.Document
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document)}
}

func (m *MemoryRepo) Create(_ context.Context, doc *document.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Origin == "" {
		doc.Origin = document.OriginInternal
	}
	if doc.Revision == 0 {
		doc.Revision = 1
	}
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	m.store[doc.ID] = doc.Clone()
	return doc.ID, nil
}

func (m *MemoryRepo) Get(_ context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return d.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) List(_ context.Context) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0, len(m.store))
	for _, d := range m.store {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepo) ListIDs(ctx context.Context) ([]string, error) {
	docs, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (m *MemoryRepo) Update(_ context.Context, id string, content string, name *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	if name != nil {
		d.Name = *name
	}
	if d.Content != content {
		d.Content = content
		d.Revision++
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) Save(_ context.Context, doc *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.store[doc.ID]; ok && doc.CreatedAt.IsZero() {
		doc.CreatedAt = prev.CreatedAt
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	m.store[doc.ID] = doc.Clone()
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}
