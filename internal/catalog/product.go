package catalog

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a source product does not exist.
var ErrNotFound = errors.New("source product not found")

// Product is a scraped supplier record.
type Product struct {
	ID             string            `json:"id" validate:"required"`
	Supplier       string            `json:"supplier" validate:"required"`
	SourceRef      string            `json:"source_ref"`
	Title          string            `json:"title"`
	RawDescription string            `json:"raw_description"`
	Specs          map[string]string `json:"specs,omitempty"`
	Cost           float64           `json:"cost" validate:"gte=0"`
	Stock          int               `json:"stock" validate:"gte=0"`
	Category       string            `json:"category"`
	CategoryID     string            `json:"category_id"`
	Images         []string          `json:"images,omitempty"`
	Shipping       map[string]any    `json:"shipping,omitempty"`
	SnapshotHash   string            `json:"snapshot_hash,omitempty"`
	RefreshedAt    time.Time         `json:"refreshed_at"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// contentFields returns the fields that define the product's snapshot.
func (p Product) contentFields() map[string]any {
	specs := make(map[string]any, len(p.Specs))
	for k, v := range p.Specs {
		specs[k] = v
	}
	images := make([]any, len(p.Images))
	for i, img := range p.Images {
		images[i] = img
	}
	shipping := make(map[string]any, len(p.Shipping))
	for k, v := range p.Shipping {
		shipping[k] = v
	}
	return map[string]any{
		"supplier":        p.Supplier,
		"source_ref":      p.SourceRef,
		"title":           p.Title,
		"raw_description": p.RawDescription,
		"specs":           specs,
		"cost":            p.Cost,
		"stock":           p.Stock,
		"category":        p.Category,
		"category_id":     p.CategoryID,
		"images":          images,
		"shipping":        shipping,
	}
}
