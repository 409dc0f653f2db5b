package document

import (
	"slices"
	"time"
)

// Document is the persisted content record. Derived fields (ContentHash,
// CdnResources, MissingCdnResources) are maintained by the task processors.
type Document struct {
	ID                  string     `json:"id" bson:"_id"`
	Name                string     `json:"name" bson:"name"`
	Content             string     `json:"content,omitempty" bson:"content,omitempty"`
	Revision            int        `json:"revision" bson:"revision"`
	ContentHash         string     `json:"contentHash,omitempty" bson:"contentHash,omitempty"`
	CdnResources        []string   `json:"cdnResources" bson:"cdnResources"`
	MissingCdnResources []string   `json:"missingCdnResources,omitempty" bson:"missingCdnResources,omitempty"`
	Origin              string     `json:"origin" bson:"origin"`
	OriginURL           string     `json:"originUrl,omitempty" bson:"originUrl,omitempty"`
	CreatedAt           time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt" bson:"updatedAt"`
	RegeneratedAt       *time.Time `json:"regeneratedAt,omitempty" bson:"regeneratedAt,omitempty"`
}

// OriginInternal marks documents authored on this instance.
const OriginInternal = "internal"

// ExternalOrigin returns the origin tag for documents imported from source.
func ExternalOrigin(source string) string { return "external/" + source }

// Clone returns a deep copy so stores never share slices with callers.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.CdnResources = slices.Clone(d.CdnResources)
	c.MissingCdnResources = slices.Clone(d.MissingCdnResources)
	if d.RegeneratedAt != nil {
		t := *d.RegeneratedAt
		c.RegeneratedAt = &t
	}
	return &c
}
