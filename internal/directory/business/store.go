package business

import (
	"context"

	"github.com/townhubhq/townhub/pkg/pagination"
)

// Repository defines the persistence operations for business listings.
type Repository interface {
	Create(ctx context.Context, b *Business) error
	FindByID(ctx context.Context, id string) (*Business, error)
	FindBySlug(ctx context.Context, slug string) (*Business, error)
	List(ctx context.Context, filter Filter, params pagination.Params) ([]*Business, int64, error)
	Update(ctx context.Context, b *Business) error
	Delete(ctx context.Context, id string) error

	// OwnedResourceIDs returns the IDs of every non-deleted business
	// owned by the given user. The auth layer uses this to populate
	// principal ownership.
	OwnedResourceIDs(ctx context.Context, ownerID string) ([]string, error)
}
