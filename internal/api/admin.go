package api

import (
	"net/http"

	"rentledger/internal/manager"
	"rentledger/internal/query"
)

// @Summary Admin dashboard
// @Tags Admin
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/admin/dashboard [get]
func (a *API) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := a.TenantMgr.Dashboard(r.Context(), caller(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"dashboard": d})
}

// @Summary List tenants
// @Tags Admin
// @Security ApiKeyAuth
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param search query string false "Name, username or room"
// @Param sort_by query string false "Sort field"
// @Param sort_order query string false "ASC or DESC"
// @Success 200 {object} map[string]interface{}
// @Router /api/admin/tenants [get]
func (a *API) ListTenants(w http.ResponseWriter, r *http.Request) {
	p, err := query.ParseParams(r.URL.Query(), manager.TenantPageDefaults)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	page, err := a.TenantMgr.ListTenants(r.Context(), caller(r), p)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	// "tenants" is kept for clients written against the unpaginated listing.
	ok(w, envelope{
		"tenants":    page.Data,
		"data":       page.Data,
		"pagination": page.Pagination,
		"statistics": page.Statistics,
	})
}

// @Summary Delete a tenant with its payments and images
// @Tags Admin
// @Security ApiKeyAuth
// @Produce json
// @Param id path int true "Tenant ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/admin/tenants/{id} [delete]
func (a *API) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.Media.DeleteTenant(r.Context(), caller(r), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"message": "tenant deleted", "deleted": res})
}

// @Summary Tenants for filter drop-downs
// @Tags Admin
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/admin/tenant-options [get]
func (a *API) TenantOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := a.TenantMgr.TenantOptions(r.Context(), caller(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"data": opts})
}
