package repository

import (
	"context"
	"errors"

	"github.com/coursebay/coursebay/backend/go-services/internal/document"
)

var (
	ErrNotFound = errors.New("document not found")
)

// Repository is implemented by the in-memory and Mongo document stores.
type Repository interface {
	Create(ctx context.Context, doc *document.Document) (string, error)
	Get(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context) ([]*document.Document, error)
	ListIDs(ctx context.Context) ([]string, error)
	Update(ctx context.Context, id string, content string, name *string) error
	// Save replaces the stored document (inserting it when absent).
	Save(ctx context.Context, doc *document.Document) error
	Delete(ctx context.Context, id string) error
}
