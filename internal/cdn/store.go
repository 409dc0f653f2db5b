// Package cdn manages the static resources documents reference with
// cdn://<path> links.
package cdn

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

var (
	ErrResourceNotFound = errors.New("cdn resource not found")
	ErrInvalidPath      = errors.New("invalid cdn resource path")
)

// ResourceStore holds CDN resources by path.
type ResourceStore interface {
	Exists(ctx context.Context, path string) (bool, error)
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error
	// Open returns ErrResourceNotFound for unknown paths.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// CleanPath validates a resource path and strips leading slashes.
func CleanPath(p string) (string, error) {
	p = strings.TrimLeft(p, "/")
	if p == "" || strings.Contains(p, "..") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	return p, nil
}

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps resources in process memory. Used when no object storage
// is configured and by unit tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *MemoryStore) Upload(_ context.Context, path string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = memoryObject{data: data, contentType: contentType}
	return nil
}

func (m *MemoryStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, ErrResourceNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}
