package service

import (
	"context"
	"errors"
	"strings"

	"github.com/coursebay/coursebay/backend/go-services/internal/document"
	"github.com/coursebay/coursebay/backend/go-services/internal/document/repository"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidDoc = errors.New("invalid document")
)

// Service defines the document business operations used by the handler layer.
type Service interface {
	Create(ctx context.Context, d *document.Document) (string, error)
	Get(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context) ([]*document.Document, error)
	Update(ctx context.Context, id string, content string, name *string) error
	Delete(ctx context.Context, id string) error
}

// New wraps an existing repository, letting the task processors share it.
func New(repo repository.Repository) Service {
	return &service{repo: repo}
}

type service struct {
	repo repository.Repository
}

func (s *service) Create(ctx context.Context, d *document.Document) (string, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		d.Name = "untitled.md"
	}
	if strings.ContainsAny(d.Name, "/\\") {
		return "", ErrInvalidDoc
	}
	return s.repo.Create(ctx, d)
}

func (s *service) Get(ctx context.Context, id string) (*document.Document, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return d, nil
}

func (s *service) List(ctx context.Context) ([]*document.Document, error) {
	return s.repo.List(ctx)
}

func (s *service) Update(ctx context.Context, id string, content string, name *string) error {
	if name != nil && (strings.TrimSpace(*name) == "" || strings.ContainsAny(*name, "/\\")) {
		return ErrInvalidDoc
	}
	return mapErr(s.repo.Update(ctx, id, content, name))
}

func (s *service) Delete(ctx context.Context, id string) error {
	return mapErr(s.repo.Delete(ctx, id))
}

func mapErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
