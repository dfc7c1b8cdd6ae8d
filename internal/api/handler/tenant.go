package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/tenancy/internal/api/request"
	"github.com/edvin/tenancy/internal/api/response"
	"github.com/edvin/tenancy/internal/core"
	"github.com/edvin/tenancy/internal/model"
)

type Tenant struct {
	svc *core.TenantService
}

func NewTenant(svc *core.TenantService) *Tenant {
	return &Tenant{svc: svc}
}

// List godoc
//
//	@Summary		List tenants
//	@Tags			Tenants
//	@Security		ApiKeyAuth
//	@Param			search query string false "Search identifier or name"
//	@Param			status query string false "active or inactive"
//	@Param			limit query int false "Page size" default(50)
//	@Param			cursor query string false "Pagination cursor"
//	@Success		200 {object} response.PaginatedResponse{items=[]model.Tenant}
//	@Failure		500 {object} response.ErrorResponse
//	@Router			/tenants [get]
func (h *Tenant) List(w http.ResponseWriter, r *http.Request) {
	params := request.ParseListParams(r)

	tenants, hasMore, err := h.svc.List(r.Context(), params)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if tenants == nil {
		tenants = []model.Tenant{}
	}

	var nextCursor string
	if hasMore && len(tenants) > 0 {
		nextCursor = tenants[len(tenants)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, tenants, nextCursor, hasMore)
}

// Create godoc
//
//	@Summary		Create a tenant and provision its service databases
//	@Tags			Tenants
//	@Security		ApiKeyAuth
//	@Param			body body request.CreateTenant true "Tenant details"
//	@Success		201 {object} model.Tenant
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Failure		500 {object} response.ErrorResponse
//	@Router			/tenants [post]
func (h *Tenant) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateTenant
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	strategy, err := model.ParseDatabaseStrategy(req.DatabaseStrategy)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	provider, err := model.ParseDatabaseProvider(req.DatabaseProvider)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenant, err := h.svc.CreateTenant(r.Context(), core.CreateTenantParams{
		Identifier:        req.Identifier,
		Name:              req.Name,
		Plan:              req.Plan,
		Strategy:          strategy,
		Provider:          provider,
		CustomCredentials: req.CustomCredentials,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, tenant)
}

// Get godoc
//
//	@Summary		Get a tenant
//	@Tags			Tenants
//	@Security		ApiKeyAuth
//	@Param			id path string true "Tenant ID"
//	@Success		200 {object} model.Tenant
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/tenants/{id} [get]
func (h *Tenant) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenant, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, tenant)
}

// GetByIdentifier godoc
//
//	@Summary		Get a tenant by its identifier
//	@Tags			Tenants
//	@Security		ApiKeyAuth
//	@Param			identifier path string true "Tenant identifier"
//	@Success		200 {object} model.Tenant
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/tenants/by-identifier/{identifier} [get]
func (h *Tenant) GetByIdentifier(w http.ResponseWriter, r *http.Request) {
	identifier, err := request.RequireID(chi.URLParam(r, "identifier"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenant, err := h.svc.GetByIdentifier(r.Context(), identifier)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, tenant)
}

// Activate godoc
//
//	@Summary		Activate a tenant
//	@Tags			Tenants
//	@Security		ApiKeyAuth
//	@Param			id path string true "Tenant ID"
//	@Success		204
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/tenants/{id}/activate [post]
func (h *Tenant) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, h.svc.Activate)
}

// Deactivate godoc
//
//	@Summary		Deactivate a tenant
//	@Tags			Tenants
//	@Security		ApiKeyAuth
//	@Param			id path string true "Tenant ID"
//	@Success		204
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/tenants/{id}/deactivate [post]
func (h *Tenant) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, h.svc.Deactivate)
}

func (h *Tenant) setActive(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id string) error) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := apply(r.Context(), id); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
