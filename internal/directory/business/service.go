package business

import (
	"context"
	"log/slog"

	"github.com/townhubhq/townhub/internal/platform/apperr"
	"github.com/townhubhq/townhub/internal/platform/sec"
	"github.com/townhubhq/townhub/internal/platform/validate"
	"github.com/townhubhq/townhub/pkg/pagination"
	"github.com/townhubhq/townhub/pkg/slug"
	"github.com/townhubhq/townhub/pkg/uuid"
)

// PrincipalResolver loads the authorization view of a user: role, granted
// permissions and owned resource ids. The auth service implements this.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, userID string) (*sec.Principal, error)
}

type Service struct {
	repo       Repository
	principals PrincipalResolver
	logger     *slog.Logger
}

func NewService(repo Repository, principals PrincipalResolver, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		principals: principals,
		logger:     logger,
	}
}

func (service *Service) ListBusinesses(ctx context.Context, filter Filter, params pagination.Params) ([]*Business, int64, error) {
	return service.repo.List(ctx, filter, params)
}

func (service *Service) GetBusiness(ctx context.Context, id string) (*Business, error) {
	return service.repo.FindByID(ctx, id)
}

func (service *Service) GetBusinessBySlug(ctx context.Context, s string) (*Business, error) {
	return service.repo.FindBySlug(ctx, s)
}

func (service *Service) CreateBusiness(ctx context.Context, ownerID string, b *Business) error {
	if err := validateBusiness(b); err != nil {
		return err
	}

	b.ID = uuid.New()
	b.OwnerID = ownerID
	b.Slug = slug.From(b.Name)

	if err := service.repo.Create(ctx, b); err != nil {
		return err
	}

	service.logger.Info("business_created",
		slog.String("business_id", b.ID),
		slog.String("owner_id", ownerID),
		slog.String("slug", b.Slug),
	)
	return nil
}

func (service *Service) UpdateBusiness(ctx context.Context, actorID, id string, b *Business) error {
	if err := service.authorize(ctx, actorID, id); err != nil {
		return err
	}
	if err := validateBusiness(b); err != nil {
		return err
	}

	existing, err := service.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	b.ID = existing.ID
	b.OwnerID = existing.OwnerID
	b.Slug = slug.From(b.Name)

	if err := service.repo.Update(ctx, b); err != nil {
		return err
	}

	service.logger.Info("business_updated", slog.String("business_id", id), slog.String("actor_id", actorID))
	return nil
}

func (service *Service) DeleteBusiness(ctx context.Context, actorID, id string) error {
	if err := service.authorize(ctx, actorID, id); err != nil {
		return err
	}

	if err := service.repo.Delete(ctx, id); err != nil {
		return err
	}

	service.logger.Warn("business_deleted", slog.String("business_id", id), slog.String("actor_id", actorID))
	return nil
}

// authorize resolves the actor's principal and checks resource access for
// the business id. Ownership is decided from the principal's owned set, so
// admins pass unconditionally and owners only for their own listings.
func (service *Service) authorize(ctx context.Context, actorID, businessID string) error {
	principal, err := service.principals.ResolvePrincipal(ctx, actorID)
	if err != nil {
		return err
	}
	if !sec.CanAccessResource(principal, businessID) {
		return apperr.Forbidden("You do not have access to this business")
	}
	return nil
}

func validateBusiness(b *Business) error {
	validator := &validate.Validator{}
	validator.Required(FieldName, b.Name).MaxLen(FieldName, b.Name, 200)
	validator.Required(FieldCategory, b.Category).MaxLen(FieldCategory, b.Category, 100)
	validator.Required(FieldCity, b.City).MaxLen(FieldCity, b.City, 100)
	validator.MaxLen(FieldDescription, b.Description, 2000)
	validator.MaxLen(FieldWebsite, b.Website, 300)
	return validator.Err()
}
