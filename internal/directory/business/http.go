package business

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/townhubhq/townhub/internal/platform/middleware"
	requestutil "github.com/townhubhq/townhub/internal/platform/request"
	"github.com/townhubhq/townhub/internal/platform/respond"
	"github.com/townhubhq/townhub/internal/platform/sec"
	"github.com/townhubhq/townhub/pkg/pagination"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (handler *Handler) RegisterRoutes(router chi.Router) {
	// Public
	router.Get("/", handler.listBusinesses)
	router.Get("/{id}", handler.getBusiness)
	router.Get("/by-slug/{slug}", handler.getBusinessBySlug)

	// Owner and above; mutations also carry the CSRF guard since the
	// session cookie rides along on browser requests.
	router.Group(func(ownerRoute chi.Router) {
		ownerRoute.Use(middleware.RequireAuth)
		ownerRoute.Use(middleware.CSRFGuard)
		ownerRoute.Use(middleware.RequireRole(sec.RoleOwner))

		ownerRoute.Post("/", handler.createBusiness)
		ownerRoute.Patch("/{id}", handler.updateBusiness)
		ownerRoute.Delete("/{id}", handler.deleteBusiness)
	})
}

func (handler *Handler) listBusinesses(writer http.ResponseWriter, request *http.Request) {
	paginationParams := pagination.FromRequest(request)

	query := request.URL.Query()
	filter := Filter{
		Query:    query.Get("q"),
		City:     query.Get("city"),
		Category: query.Get("category"),
		OwnerID:  query.Get("owner_id"),
	}

	businesses, total, err := handler.service.ListBusinesses(request.Context(), filter, paginationParams)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, businesses, pagination.NewMeta(paginationParams, total))
}

func (handler *Handler) getBusiness(writer http.ResponseWriter, request *http.Request) {
	b, err := handler.service.GetBusiness(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, b)
}

func (handler *Handler) getBusinessBySlug(writer http.ResponseWriter, request *http.Request) {
	b, err := handler.service.GetBusinessBySlug(request.Context(), requestutil.Param(request, "slug"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, b)
}

func (handler *Handler) createBusiness(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input Business
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.CreateBusiness(request.Context(), userID, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Created(writer, input)
}

func (handler *Handler) updateBusiness(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input Business
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.UpdateBusiness(request.Context(), userID, requestutil.ID(request, "id"), &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, input)
}

func (handler *Handler) deleteBusiness(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.DeleteBusiness(request.Context(), userID, requestutil.ID(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}
