// Package importer copies documents and their CDN resources from remote
// instances.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coursebay/coursebay/backend/go-services/internal/cdn"
	"github.com/coursebay/coursebay/backend/go-services/internal/config"
	"github.com/coursebay/coursebay/backend/go-services/internal/document"
	"github.com/coursebay/coursebay/backend/go-services/internal/document/repository"
	"github.com/coursebay/coursebay/backend/go-services/internal/task"
	"github.com/coursebay/coursebay/backend/go-services/pkg/logger"
	"go.uber.org/zap"
)

var (
	ErrImportSourceNotFound = errors.New("import source not found")
	ErrRemoteNotFound       = errors.New("remote document not found")
)

// APIKeyHeader authenticates this instance against a remote one.
const APIKeyHeader = "X-Api-Key"

// remoteDocument is the subset of a remote GET /api/v1/documents/:id body
// the import needs.
type remoteDocument struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	Revision int    `json:"revision"`
}

// Sources resolves an import source by name.
type Sources interface {
	ImportSource(name string) (config.ImportSource, bool)
}

// Processor imports one document per task from the batch's import source.
type Processor struct {
	sources Sources
	docs    repository.Repository
	store   cdn.ResourceStore
	client  *http.Client
	now     func() time.Time
	log     *zap.SugaredLogger
}

func NewProcessor(sources Sources, docs repository.Repository, store cdn.ResourceStore, client *http.Client) *Processor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Processor{
		sources: sources,
		docs:    docs,
		store:   store,
		client:  client,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logger.Named("importer"),
	}
}

func (p *Processor) Process(ctx context.Context, t *task.Task, params task.BatchParams) error {
	src, ok := p.sources.ImportSource(params.ImportSourceName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrImportSourceNotFound, params.ImportSourceName)
	}
	key := t.TaskParams.Key

	local, err := p.docs.Get(ctx, key)
	switch {
	case err == nil:
		if local.Revision >= t.TaskParams.ImportableRevision {
			p.log.Debugw("document is up to date, skipping import", "documentId", key, "revision", local.Revision)
			return nil
		}
	case errors.Is(err, repository.ErrNotFound):
		local = nil
	default:
		return fmt.Errorf("load document %s: %w", key, err)
	}

	docURL := baseURL(src).JoinPath("api", "v1", "documents", key)
	var remote remoteDocument
	if err := p.getJSON(ctx, src, docURL.String(), &remote); err != nil {
		return fmt.Errorf("fetch %s from %s: %w", key, src.Name, err)
	}

	resources := cdn.ExtractResources(remote.Content)
	for _, r := range resources {
		if err := p.copyResource(ctx, src, r); err != nil {
			return err
		}
	}

	now := p.now()
	doc := &document.Document{
		ID:           key,
		Name:         remote.Name,
		Content:      remote.Content,
		Revision:     remote.Revision,
		CdnResources: resources,
		Origin:       document.ExternalOrigin(src.Name),
		OriginURL:    docURL.String(),
		UpdatedAt:    now,
	}
	if local != nil {
		doc.CreatedAt = local.CreatedAt
	} else {
		doc.CreatedAt = now
	}
	if err := p.docs.Save(ctx, doc); err != nil {
		return fmt.Errorf("save document %s: %w", key, err)
	}
	p.log.Infow("document imported", "documentId", key, "source", src.Name, "revision", remote.Revision, "resources", len(resources))
	return nil
}

// copyResource downloads a CDN resource from the source unless the local
// store already has it.
func (p *Processor) copyResource(ctx context.Context, src config.ImportSource, path string) error {
	exists, err := p.store.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("check resource %s: %w", path, err)
	}
	if exists {
		return nil
	}

	u := baseURL(src).JoinPath("cdn", path)
	resp, err := p.do(ctx, src, u.String())
	if err != nil {
		return fmt.Errorf("fetch resource %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch resource %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := p.store.Upload(ctx, path, resp.Body, resp.ContentLength, resp.Header.Get("Content-Type")); err != nil {
		return fmt.Errorf("store resource %s: %w", path, err)
	}
	return nil
}

func (p *Processor) getJSON(ctx context.Context, src config.ImportSource, u string, v interface{}) error {
	resp, err := p.do(ctx, src, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrRemoteNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (p *Processor) do(ctx context.Context, src config.ImportSource, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(APIKeyHeader, src.APIKey)
	return p.client.Do(req)
}

func baseURL(src config.ImportSource) *url.URL {
	scheme := "https"
	if src.AllowInsecure {
		scheme = "http"
	}
	return &url.URL{Scheme: scheme, Host: src.HostName}
}
