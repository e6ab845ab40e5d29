package api

import (
	"net/http"
	"time"

	"rentledger/internal/manager"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type EmailCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// @Summary Liveness check
// @Tags Health
// @Produce plain
// @Success 200 {string} string "OK"
// @Router /health [get]
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// @Summary Service health with record counts
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/health [get]
func (a *API) APIHealth(w http.ResponseWriter, r *http.Request) {
	tenants, payments, images := a.Store.Counts()
	ok(w, envelope{
		"message":   "service is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"dataCounts": map[string]int{
			"tenants":  tenants,
			"payments": payments,
			"images":   images,
			"bankInfo": 1,
		},
	})
}

// @Summary Log in as admin or tenant
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body LoginRequest true "Credentials"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/login [post]
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var body LoginRequest
	if err := decodeJSON(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	s, err := a.TenantMgr.Login(r.Context(), body.Username, body.Password, body.Role)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"token": s.Token, "user": s.User})
}

// @Summary Register a tenant
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body manager.RegisterInput true "Tenant"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/register [post]
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var body manager.RegisterInput
	if err := decodeJSON(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	s, err := a.TenantMgr.Register(r.Context(), body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"message": "registration successful", "token": s.Token, "user": s.User})
}

// @Summary Send a password reset code
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body EmailCodeRequest true "Email"
// @Success 200 {object} map[string]interface{}
// @Router /api/send-email-code [post]
func (a *API) SendEmailCode(w http.ResponseWriter, r *http.Request) {
	var body EmailCodeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.TenantMgr.SendResetCode(r.Context(), body.Email); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"message": "verification code sent, check your inbox"})
}

// @Summary Check a password reset code
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body EmailCodeRequest true "Email and code"
// @Success 200 {object} map[string]interface{}
// @Router /api/verify-email-code [post]
func (a *API) VerifyEmailCode(w http.ResponseWriter, r *http.Request) {
	var body EmailCodeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.TenantMgr.VerifyResetCode(r.Context(), body.Email, body.Code); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"message": "verification successful"})
}

// @Summary Set a new password with a reset code
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body ResetPasswordRequest true "Reset"
// @Success 200 {object} map[string]interface{}
// @Router /api/reset-password [post]
func (a *API) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body ResetPasswordRequest
	if err := decodeJSON(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.TenantMgr.ResetPassword(r.Context(), body.Email, body.Code, body.NewPassword); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"message": "password updated"})
}

// @Summary Own tenant profile
// @Tags Tenants
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/profile [get]
func (a *API) Profile(w http.ResponseWriter, r *http.Request) {
	view, err := a.TenantMgr.Profile(r.Context(), caller(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"user": view})
}

// @Summary Bank transfer details
// @Tags Bank
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/bank-info [get]
func (a *API) GetBankInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.TenantMgr.BankInfo(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"bankInfo": info})
}

// @Summary Replace bank transfer details
// @Tags Bank
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param body body manager.BankInfoInput true "Bank info"
// @Success 200 {object} map[string]interface{}
// @Router /api/bank-info [put]
func (a *API) UpdateBankInfo(w http.ResponseWriter, r *http.Request) {
	var body manager.BankInfoInput
	if err := decodeJSON(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	info, err := a.TenantMgr.UpdateBankInfo(r.Context(), caller(r), body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, envelope{"message": "bank info updated", "bankInfo": info})
}
