package business

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townhubhq/townhub/internal/platform/apperr"
	"github.com/townhubhq/townhub/internal/platform/dberr"
	"github.com/townhubhq/townhub/internal/platform/sec"
	"github.com/townhubhq/townhub/pkg/pagination"
)

type memoryRepository struct {
	businesses map[string]*Business
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{businesses: map[string]*Business{}}
}

func (m *memoryRepository) Create(_ context.Context, b *Business) error {
	clone := *b
	m.businesses[b.ID] = &clone
	return nil
}

func (m *memoryRepository) FindByID(_ context.Context, id string) (*Business, error) {
	b, ok := m.businesses[id]
	if !ok {
		return nil, dberr.ErrNotFound
	}
	clone := *b
	return &clone, nil
}

func (m *memoryRepository) FindBySlug(_ context.Context, slug string) (*Business, error) {
	for _, b := range m.businesses {
		if b.Slug == slug {
			clone := *b
			return &clone, nil
		}
	}
	return nil, dberr.ErrNotFound
}

func (m *memoryRepository) List(_ context.Context, _ Filter, _ pagination.Params) ([]*Business, int64, error) {
	var out []*Business
	for _, b := range m.businesses {
		clone := *b
		out = append(out, &clone)
	}
	return out, int64(len(out)), nil
}

func (m *memoryRepository) Update(_ context.Context, b *Business) error {
	if _, ok := m.businesses[b.ID]; !ok {
		return dberr.ErrNotFound
	}
	clone := *b
	m.businesses[b.ID] = &clone
	return nil
}

func (m *memoryRepository) Delete(_ context.Context, id string) error {
	if _, ok := m.businesses[id]; !ok {
		return dberr.ErrNotFound
	}
	delete(m.businesses, id)
	return nil
}

func (m *memoryRepository) OwnedResourceIDs(_ context.Context, ownerID string) ([]string, error) {
	var ids []string
	for _, b := range m.businesses {
		if b.OwnerID == ownerID {
			ids = append(ids, b.ID)
		}
	}
	return ids, nil
}

// staticPrincipalResolver hands out pre-built principals keyed by user id,
// re-reading ownership from the repository on every call.
type staticPrincipalResolver struct {
	repo  *memoryRepository
	roles map[string]sec.Role
}

func (s *staticPrincipalResolver) ResolvePrincipal(ctx context.Context, userID string) (*sec.Principal, error) {
	role, ok := s.roles[userID]
	if !ok {
		return nil, apperr.NotFound("User")
	}
	owned, _ := s.repo.OwnedResourceIDs(ctx, userID)
	return &sec.Principal{ID: userID, Role: role, OwnedResources: owned}, nil
}

const (
	ownerAliceID = "11111111-1111-4111-8111-111111111111"
	ownerBobID   = "22222222-2222-4222-8222-222222222222"
	adminID      = "33333333-3333-4333-8333-333333333333"
	memberID     = "44444444-4444-4444-8444-444444444444"
	superAdminID = "55555555-5555-4555-8555-555555555555"
)

func newFixture(t *testing.T) (*Service, *memoryRepository) {
	t.Helper()

	repo := newMemoryRepository()
	resolver := &staticPrincipalResolver{
		repo: repo,
		roles: map[string]sec.Role{
			ownerAliceID: sec.RoleOwner,
			ownerBobID:   sec.RoleOwner,
			adminID:      sec.RoleAdmin,
			memberID:     sec.RoleMember,
			superAdminID: sec.RoleSuperAdmin,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, resolver, logger), repo
}

func createListing(t *testing.T, service *Service, ownerID, name string) *Business {
	t.Helper()

	b := &Business{
		Name:     name,
		Category: "cafe",
		City:     "Portland",
	}
	require.NoError(t, service.CreateBusiness(context.Background(), ownerID, b))
	return b
}

func TestService_CreateBusiness(t *testing.T) {
	ctx := context.Background()

	t.Run("sets_owner_and_slug", func(t *testing.T) {
		service, repo := newFixture(t)

		b := createListing(t, service, ownerAliceID, "Rosie's Coffee House")

		stored, err := repo.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, ownerAliceID, stored.OwnerID)
		assert.Equal(t, "rosie-s-coffee-house", stored.Slug)
	})

	t.Run("rejects_missing_fields", func(t *testing.T) {
		service, _ := newFixture(t)

		err := service.CreateBusiness(ctx, ownerAliceID, &Business{Name: "No City", Category: "cafe"})
		require.Error(t, err)

		var appError *apperr.AppError
		require.ErrorAs(t, err, &appError)
		assert.Equal(t, "VALIDATION_ERROR", appError.Code)
	})
}

func TestService_OwnershipMatrix(t *testing.T) {
	ctx := context.Background()

	update := func(b *Business) *Business {
		clone := *b
		clone.Name = "Renamed Listing"
		return &clone
	}

	t.Run("owner_updates_own_listing", func(t *testing.T) {
		service, repo := newFixture(t)
		b := createListing(t, service, ownerAliceID, "Alice Bakery")

		require.NoError(t, service.UpdateBusiness(ctx, ownerAliceID, b.ID, update(b)))

		stored, err := repo.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed Listing", stored.Name)
		assert.Equal(t, "renamed-listing", stored.Slug)
	})

	t.Run("owner_cannot_touch_another_owners_listing", func(t *testing.T) {
		service, _ := newFixture(t)
		b := createListing(t, service, ownerAliceID, "Alice Bakery")

		err := service.UpdateBusiness(ctx, ownerBobID, b.ID, update(b))
		var appError *apperr.AppError
		require.ErrorAs(t, err, &appError)
		assert.Equal(t, "FORBIDDEN", appError.Code)

		err = service.DeleteBusiness(ctx, ownerBobID, b.ID)
		require.ErrorAs(t, err, &appError)
		assert.Equal(t, "FORBIDDEN", appError.Code)
	})

	t.Run("member_is_denied", func(t *testing.T) {
		service, _ := newFixture(t)
		b := createListing(t, service, ownerAliceID, "Alice Bakery")

		err := service.DeleteBusiness(ctx, memberID, b.ID)
		var appError *apperr.AppError
		require.ErrorAs(t, err, &appError)
		assert.Equal(t, "FORBIDDEN", appError.Code)
	})

	t.Run("admin_manages_any_listing", func(t *testing.T) {
		service, repo := newFixture(t)
		b := createListing(t, service, ownerAliceID, "Alice Bakery")

		require.NoError(t, service.UpdateBusiness(ctx, adminID, b.ID, update(b)))
		require.NoError(t, service.DeleteBusiness(ctx, adminID, b.ID))

		_, err := repo.FindByID(ctx, b.ID)
		assert.ErrorIs(t, err, dberr.ErrNotFound)
	})

	t.Run("superadmin_manages_any_listing", func(t *testing.T) {
		service, _ := newFixture(t)
		b := createListing(t, service, ownerBobID, "Bob Garage")

		require.NoError(t, service.DeleteBusiness(ctx, superAdminID, b.ID))
	})

	t.Run("update_preserves_owner", func(t *testing.T) {
		service, repo := newFixture(t)
		b := createListing(t, service, ownerAliceID, "Alice Bakery")

		input := update(b)
		input.OwnerID = adminID // must be ignored
		require.NoError(t, service.UpdateBusiness(ctx, adminID, b.ID, input))

		stored, err := repo.FindByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, ownerAliceID, stored.OwnerID)
	})
}
