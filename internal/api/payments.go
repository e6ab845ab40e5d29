package api

import (
	"net/http"

	"rentledger/internal/ledger"
	"rentledger/internal/query"
)

type StatusRequest struct {
	Status string `json:"status"`
}

// @Summary List payments
// @Description Admins see every payment, tenants only their own.
// @Tags Payments
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/payments [get]
func (a *API) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := a.Ledger.ListPayments(r.Context(), caller(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"payments": payments})
}

// @Summary Submit a payment
// @Tags Payments
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param body body ledger.PaymentInput true "Payment"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/payments [post]
func (a *API) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var body ledger.PaymentInput
	if err := decodeJSON(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	p, err := a.Ledger.CreatePayment(r.Context(), caller(r), body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"message": "payment submitted", "payment": p})
}

// @Summary Set payment status
// @Tags Payments
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param id path int true "Payment ID"
// @Param body body StatusRequest true "pending or confirmed"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/payments/{id} [put]
// @Router /api/admin/payments/{id}/status [put]
func (a *API) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var body StatusRequest
	if err := decodeJSON(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	p, err := a.Ledger.SetStatus(r.Context(), caller(r), id, body.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"message": "payment status updated", "payment": p})
}

// @Summary Paginated payments
// @Tags Admin
// @Security ApiKeyAuth
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param status query string false "pending, confirmed or all"
// @Param tenant_id query string false "Tenant ID or all"
// @Param search query string false "Search text"
// @Param sort_by query string false "Sort field"
// @Param sort_order query string false "ASC or DESC"
// @Success 200 {object} map[string]interface{}
// @Router /api/admin/payments/paginated [get]
func (a *API) PaginatePayments(w http.ResponseWriter, r *http.Request) {
	p, err := query.ParseParams(r.URL.Query(), ledger.PageDefaults)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	page, err := a.Ledger.Paginate(r.Context(), caller(r), p)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"data": page.Data, "pagination": page.Pagination, "statistics": page.Statistics})
}
