// Package domain contains the core types for car listings.
package domain

import "time"

// Car represents a single car listing owned by a user.
type Car struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Images      []string  `json:"images"` // Reference paths into upload storage, append-only
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CarUpdate describes a partial update to a car listing.
// Nil fields keep the current value.
type CarUpdate struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

// Apply copies the populated fields onto the car.
func (u CarUpdate) Apply(c *Car) {
	if u.Title != nil {
		c.Title = *u.Title
	}
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.Tags != nil {
		c.Tags = *u.Tags
	}
}

// AppendImages adds new image references to the end of the listing.
// Existing references are never reordered or removed.
func (c *Car) AppendImages(refs []string) {
	c.Images = append(c.Images, refs...)
}
