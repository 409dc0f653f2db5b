// Package regeneration rebuilds the derived fields of stored documents.
package regeneration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/coursebay/coursebay/backend/go-services/internal/cdn"
	"github.com/coursebay/coursebay/backend/go-services/internal/document/repository"
	"github.com/coursebay/coursebay/backend/go-services/internal/task"
	"github.com/coursebay/coursebay/backend/go-services/pkg/logger"
	"go.uber.org/zap"
)

// Normalize converts line endings to LF, trims trailing whitespace on every
// line and ends non-empty content with exactly one newline.
func Normalize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	out := strings.TrimRight(strings.Join(lines, "\n"), "\n")
	if out == "" {
		return ""
	}
	return out + "\n"
}

// ContentHash is the hex sha256 of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Processor regenerates one document per task.
type Processor struct {
	docs repository.Repository
	now  func() time.Time
	log  *zap.SugaredLogger
}

func NewProcessor(docs repository.Repository) *Processor {
	return &Processor{
		docs: docs,
		now:  func() time.Time { return time.Now().UTC() },
		log:  logger.Named("regeneration"),
	}
}

func (p *Processor) Process(ctx context.Context, t *task.Task, _ task.BatchParams) error {
	doc, err := p.docs.Get(ctx, t.TaskParams.Key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			p.log.Infow("document is gone, skipping regeneration", "documentId", t.TaskParams.Key)
			return nil
		}
		return fmt.Errorf("load document %s: %w", t.TaskParams.Key, err)
	}

	content := Normalize(doc.Content)
	hash := ContentHash(content)
	resources := cdn.ExtractResources(content)
	if content == doc.Content && hash == doc.ContentHash && slices.Equal(resources, doc.CdnResources) {
		return nil
	}

	if content != doc.Content {
		doc.Revision++
	}
	now := p.now()
	doc.Content = content
	doc.ContentHash = hash
	doc.CdnResources = resources
	doc.RegeneratedAt = &now
	doc.UpdatedAt = now
	if err := p.docs.Save(ctx, doc); err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	p.log.Debugw("document regenerated", "documentId", doc.ID, "revision", doc.Revision)
	return nil
}
