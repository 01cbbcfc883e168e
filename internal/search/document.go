// Package search provides keyword search over car listings using Bleve.
// Listings are matched by substring on title and description or by exact
// tag, always scoped to a single owner.
package search

import (
	"github.com/motorlot/motorlot-server/internal/domain"
)

// CarDocument is the document structure for the Bleve index.
//
// Design note: title and description are indexed as single lowercase terms
// rather than tokenized text. Matching is substring-based, not word-based,
// so "Chevrolet" must match a query for "evro". Tags and owner_id stay
// untouched keyword terms for exact matching.
type CarDocument struct {
	ID          string   `json:"id"`
	OwnerID     string   `json:"owner_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	// Timestamps for sorting, Unix millis.
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// NewCarDocument builds an index document from a car listing.
func NewCarDocument(car *domain.Car) *CarDocument {
	return &CarDocument{
		ID:          car.ID,
		OwnerID:     car.OwnerID,
		Title:       car.Title,
		Description: car.Description,
		Tags:        car.Tags,
		CreatedAt:   car.CreatedAt.UnixMilli(),
		UpdatedAt:   car.UpdatedAt.UnixMilli(),
	}
}

// ToMap converts the document to a map with lowercase field names.
// Bleve by default uses Go struct field names (capitalized), but our
// mapping uses lowercase names, so we convert explicitly.
func (d *CarDocument) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":         d.ID,
		"owner_id":   d.OwnerID,
		"title":      d.Title,
		"created_at": d.CreatedAt,
		"updated_at": d.UpdatedAt,
	}

	if d.Description != "" {
		m["description"] = d.Description
	}
	if len(d.Tags) > 0 {
		m["tags"] = d.Tags
	}

	return m
}
