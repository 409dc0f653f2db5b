package cdn

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/coursebay/coursebay/backend/go-services/internal/document/repository"
	"github.com/coursebay/coursebay/backend/go-services/internal/task"
	"github.com/coursebay/coursebay/backend/go-services/pkg/logger"
	"go.uber.org/zap"
)

// ConsolidationProcessor recomputes a document's CDN resource list and
// records the referenced resources that are absent from the store.
type ConsolidationProcessor struct {
	docs  repository.Repository
	store ResourceStore
	now   func() time.Time
	log   *zap.SugaredLogger
}

func NewConsolidationProcessor(docs repository.Repository, store ResourceStore) *ConsolidationProcessor {
	return &ConsolidationProcessor{
		docs:  docs,
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logger.Named("cdn"),
	}
}

func (p *ConsolidationProcessor) Process(ctx context.Context, t *task.Task, _ task.BatchParams) error {
	doc, err := p.docs.Get(ctx, t.TaskParams.Key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			p.log.Infow("document is gone, nothing to consolidate", "documentId", t.TaskParams.Key)
			return nil
		}
		return fmt.Errorf("load document %s: %w", t.TaskParams.Key, err)
	}

	resources := ExtractResources(doc.Content)
	missing := []string{}
	for _, r := range resources {
		ok, err := p.store.Exists(ctx, r)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, r)
		}
	}

	if slices.Equal(resources, doc.CdnResources) && slices.Equal(missing, doc.MissingCdnResources) {
		return nil
	}
	doc.CdnResources = resources
	doc.MissingCdnResources = missing
	doc.UpdatedAt = p.now()
	if err := p.docs.Save(ctx, doc); err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	if len(missing) > 0 {
		p.log.Warnw("document references missing cdn resources", "documentId", doc.ID, "missing", missing)
	}
	return nil
}
