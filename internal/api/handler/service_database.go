package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/tenancy/internal/api/request"
	"github.com/edvin/tenancy/internal/api/response"
	"github.com/edvin/tenancy/internal/core"
)

// ServiceDatabase serves the per-service endpoints backend services call
// about their own tenant databases.
type ServiceDatabase struct {
	svc *core.TenantService
}

func NewServiceDatabase(svc *core.TenantService) *ServiceDatabase {
	return &ServiceDatabase{svc: svc}
}

func pathParams(w http.ResponseWriter, r *http.Request) (tenantID, service string, ok bool) {
	tenantID, err := request.RequireID(chi.URLParam(r, "tenantID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	service, err = request.RequireServiceName(chi.URLParam(r, "serviceName"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return tenantID, service, true
}

// Database godoc
//
//	@Summary		Get where a service's tenant credentials live
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			tenantID path string true "Tenant ID"
//	@Param			serviceName path string true "Service name"
//	@Success		200 {object} model.DatabaseMetadata
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/tenants/{tenantID}/services/{serviceName}/database [get]
func (h *ServiceDatabase) Database(w http.ResponseWriter, r *http.Request) {
	tenantID, service, ok := pathParams(w, r)
	if !ok {
		return
	}
	meta, err := h.svc.GetDatabaseMetadata(r.Context(), tenantID, service)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, meta)
}

// MigrationStatus godoc
//
//	@Summary		Get a service's migration status for a tenant
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			tenantID path string true "Tenant ID"
//	@Param			serviceName path string true "Service name"
//	@Success		200 {object} model.MigrationStatus
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/tenants/{tenantID}/services/{serviceName}/migration-status [get]
func (h *ServiceDatabase) MigrationStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, service, ok := pathParams(w, r)
	if !ok {
		return
	}
	st, err := h.svc.GetMigrationStatus(r.Context(), tenantID, service)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, st)
}

// UpdateMigrationStatus godoc
//
//	@Summary		Report a service's migration progress
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			tenantID path string true "Tenant ID"
//	@Param			serviceName path string true "Service name"
//	@Param			body body request.UpdateMigrationStatus true "Status report"
//	@Success		200 {object} model.MigrationStatus
//	@Failure		400 {object} response.ErrorResponse
//	@Failure		404 {object} response.ErrorResponse
//	@Failure		409 {object} response.ErrorResponse
//	@Router			/tenants/{tenantID}/services/{serviceName}/migration-status [put]
func (h *ServiceDatabase) UpdateMigrationStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, service, ok := pathParams(w, r)
	if !ok {
		return
	}
	var req request.UpdateMigrationStatus
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.svc.UpdateMigrationStatus(r.Context(), tenantID, service, req.ToModel())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, st)
}

// Readiness godoc
//
//	@Summary		Check whether a service's tenant database is migrated
//	@Tags			Services
//	@Security		ApiKeyAuth
//	@Param			tenantID path string true "Tenant ID"
//	@Param			serviceName path string true "Service name"
//	@Success		200 {object} core.Readiness
//	@Failure		404 {object} response.ErrorResponse
//	@Router			/tenants/{tenantID}/services/{serviceName}/readiness [get]
func (h *ServiceDatabase) Readiness(w http.ResponseWriter, r *http.Request) {
	tenantID, service, ok := pathParams(w, r)
	if !ok {
		return
	}
	ready, err := h.svc.CheckServiceReadiness(r.Context(), tenantID, service)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, ready)
}
