// Package business implements the local business directory listings.
package business

import "time"

// Business represents a local business listing in the directory.
type Business struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Category    string     `json:"category"`
	Description string     `json:"description,omitempty"`
	Address     string     `json:"address,omitempty"`
	City        string     `json:"city"`
	Website     string     `json:"website,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	IsPublished bool       `json:"is_published"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"-"` // soft-delete tracker
}

// Filter holds the parameters for a paginated business search.
type Filter struct {
	Query    string // ILIKE search against name and description
	City     string
	Category string
	OwnerID  string
}

const (
	FieldName        = "name"
	FieldCategory    = "category"
	FieldDescription = "description"
	FieldCity        = "city"
	FieldWebsite     = "website"
	FieldBusinessID  = "business_id"
)
