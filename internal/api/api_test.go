package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentledger/internal/auth"
	"rentledger/internal/blob"
	"rentledger/internal/config"
	"rentledger/internal/ledger"
	"rentledger/internal/logging"
	"rentledger/internal/manager"
	"rentledger/internal/media"
	"rentledger/internal/messaging"
	"rentledger/internal/model"
	"rentledger/internal/notify"
	"rentledger/internal/storage"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type server struct {
	t       *testing.T
	handler http.Handler
	gate    *auth.Gate
	store   *storage.Store
}

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Uploads.Dir = filepath.Join(t.TempDir(), "uploads")
	cfg.Uploads.PublicPrefix = "/uploads"
	cfg.Uploads.MaxFileSize = 1 << 20
	cfg.Uploads.MaxFiles = 5
	cfg.RateLimit.PerSecond = 1000
	cfg.RateLimit.Burst = 1000
	return cfg
}

func newServer(t *testing.T, cfg *config.Config) *server {
	t.Helper()
	log := logging.Discard()
	ctx := context.Background()

	store := storage.NewStore(
		storage.NewFileBackend(filepath.Join(t.TempDir(), "data.json")),
		log,
		storage.WithSeed(manager.SeedDataset),
	)
	require.NoError(t, store.Load(ctx))

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	require.NoError(t, err)
	gate := auth.NewGate(tokens)
	admins, err := auth.AdminsFromConfig([]config.AdminAccount{
		{Username: "landlord", Password: "owner-pass", Name: "Landlord"},
	})
	require.NoError(t, err)

	blobs, err := blob.NewLocalStorage(cfg.Uploads.Dir, cfg.Uploads.PublicPrefix)
	require.NoError(t, err)

	events := messaging.Discard{}
	tm := manager.NewTenantManager(manager.Deps{
		Store:    store,
		Gate:     gate,
		Admins:   admins,
		Codes:    notify.NewMemoryCodeStore(),
		Mailer:   notify.NewLogMailer(log),
		MailFrom: "noreply@example.com",
		Events:   events,
		Log:      log,
	})
	reg := media.New(store, blobs, events, media.Limits{
		MaxFileSize: cfg.Uploads.MaxFileSize,
		MaxFiles:    cfg.Uploads.MaxFiles,
	}, log)

	a := NewAPI(gate, tm, ledger.New(store, events, log), reg, store, cfg, log)
	return &server{t: t, handler: a.Router(), gate: gate, store: store}
}

func (s *server) token(id model.Identity) string {
	tok, err := s.gate.Issue(id)
	require.NoError(s.t, err)
	return tok
}

func (s *server) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	s.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.send(req)
}

func (s *server) send(req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	var out map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

var (
	admin  = model.Identity{Username: "landlord", Role: model.RoleAdmin, Name: "Landlord"}
	seeded = model.Identity{ID: 2, Username: "tenant", Role: model.RoleTenant}
)

func TestHealth(t *testing.T) {
	s := newServer(t, testConfig(t))

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec, body := s.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	counts := body["dataCounts"].(map[string]interface{})
	assert.Equal(t, float64(1), counts["tenants"])
	assert.Equal(t, float64(1), counts["bankInfo"])
}

func TestUnknownRoute(t *testing.T) {
	s := newServer(t, testConfig(t))

	rec, body := s.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestLogin(t *testing.T) {
	s := newServer(t, testConfig(t))

	rec, body := s.do(http.MethodPost, "/api/login", "", LoginRequest{Username: "tenant", Password: "123456", Role: "tenant"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "101", user["room_number"])
	assert.NotContains(t, user, "password")

	rec, body = s.do(http.MethodPost, "/api/login", "", LoginRequest{Username: "tenant", Password: "wrong", Role: "tenant"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, _ = s.do(http.MethodPost, "/api/login", "", LoginRequest{Username: "landlord", Password: "owner-pass", Role: "admin"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterConflict(t *testing.T) {
	s := newServer(t, testConfig(t))

	in := manager.RegisterInput{Username: "amy", Password: "secret1", Name: "Amy", RoomNumber: "203"}
	rec, body := s.do(http.MethodPost, "/api/register", "", in)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["token"])

	rec, body = s.do(http.MethodPost, "/api/register", "", in)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "username amy already exists", body["message"])
}

func TestMalformedJSON(t *testing.T) {
	s := newServer(t, testConfig(t))

	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString("{"))
	rec, body := s.send(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestSecuredRoutesNeedToken(t *testing.T) {
	s := newServer(t, testConfig(t))

	for _, path := range []string{"/api/payments", "/api/images", "/api/profile", "/api/admin/dashboard"} {
		rec, body := s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, false, body["success"], path)
	}

	rec, _ := s.do(http.MethodGet, "/api/payments", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesForbidTenants(t *testing.T) {
	s := newServer(t, testConfig(t))
	tok := s.token(seeded)

	for _, path := range []string{
		"/api/admin/dashboard",
		"/api/admin/tenants",
		"/api/admin/tenant-options",
		"/api/admin/payments/paginated",
		"/api/admin/images/paginated",
	} {
		rec, _ := s.do(http.MethodGet, path, tok, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}

	rec, _ := s.do(http.MethodPut, "/api/bank-info", tok, manager.BankInfoInput{BankName: "x", AccountNumber: "1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPaymentFlow(t *testing.T) {
	s := newServer(t, testConfig(t))
	tenantTok := s.token(seeded)
	adminTok := s.token(admin)

	rec, body := s.do(http.MethodPost, "/api/payments", tenantTok, map[string]interface{}{
		"rent_amount":      15000,
		"water_fee":        "200",
		"electricity_rate": 5,
		"previous_meter":   100,
		"current_meter":    150,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := body["payment"].(map[string]interface{})
	assert.Equal(t, float64(250), p["electricity_fee"])
	assert.Equal(t, float64(15450), p["total_amount"])
	assert.Equal(t, "pending", p["status"])
	id := int64(p["id"].(float64))

	rec, _ = s.do(http.MethodPut, fmt.Sprintf("/api/payments/%d", id), tenantTok, StatusRequest{Status: "confirmed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = s.do(http.MethodPut, fmt.Sprintf("/api/admin/payments/%d/status", id), adminTok, StatusRequest{Status: "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmed", body["payment"].(map[string]interface{})["status"])

	rec, _ = s.do(http.MethodPut, "/api/payments/999", adminTok, StatusRequest{Status: "confirmed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(http.MethodPut, "/api/payments/abc", adminTok, StatusRequest{Status: "confirmed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(http.MethodGet, "/api/admin/payments/paginated?status=confirmed", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 1)
	row := body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "101", row["room_number"])
	stats := body["statistics"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["confirmed_payments"])
	pg := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(1), pg["total_pages"])
}

func TestPaymentValidation(t *testing.T) {
	s := newServer(t, testConfig(t))

	rec, body := s.do(http.MethodPost, "/api/payments", s.token(seeded), map[string]interface{}{"rent_amount": 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["message"])
}

func TestPaginationParamsRejected(t *testing.T) {
	s := newServer(t, testConfig(t))

	rec, _ := s.do(http.MethodGet, "/api/admin/tenants?page=0", s.token(admin), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartBody(t *testing.T, field string, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for _, name := range names {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write(pngBytes)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestUploadAndServe(t *testing.T) {
	s := newServer(t, testConfig(t))
	tok := s.token(seeded)

	buf, ctype := multipartBody(t, "image", "receipt.png")
	req := httptest.NewRequest(http.MethodPost, "/api/images/upload", buf)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec, body := s.send(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	img := body["image"].(map[string]interface{})
	assert.Equal(t, "image/png", img["file_type"])
	url := img["image_url"].(string)

	served := httptest.NewRecorder()
	s.handler.ServeHTTP(served, httptest.NewRequest(http.MethodGet, url, nil))
	assert.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, pngBytes, served.Body.Bytes())

	id := int64(img["id"].(float64))
	rec, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/images/%d", id), s.token(model.Identity{ID: 9, Role: model.RoleTenant}), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/images/%d", id), tok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	gone := httptest.NewRecorder()
	s.handler.ServeHTTP(gone, httptest.NewRequest(http.MethodGet, url, nil))
	assert.Equal(t, http.StatusNotFound, gone.Code)
}

func TestSingleUploadRejectsSeveralFiles(t *testing.T) {
	s := newServer(t, testConfig(t))

	buf, ctype := multipartBody(t, "image", "a.png", "b.png")
	req := httptest.NewRequest(http.MethodPost, "/api/images/upload", buf)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer "+s.token(seeded))
	rec, body := s.send(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])

	_, _, images := s.store.Counts()
	assert.Zero(t, images)
}

func TestUploadMultipleLimit(t *testing.T) {
	s := newServer(t, testConfig(t))

	buf, ctype := multipartBody(t, "images", "a.png", "b.png", "c.png", "d.png", "e.png", "f.png")
	req := httptest.NewRequest(http.MethodPost, "/api/images/upload-multiple", buf)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer "+s.token(seeded))
	rec, _ := s.send(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, images := s.do(http.MethodGet, "/api/images", s.token(seeded), nil)
	assert.Empty(t, images["images"])
}

func TestDeleteTenantCascade(t *testing.T) {
	s := newServer(t, testConfig(t))
	tenantTok := s.token(seeded)

	rec, _ := s.do(http.MethodPost, "/api/images/save", tenantTok, media.FileMeta{
		ImageURL: "https://cdn.example.com/r.png", FileName: "r.png", FileSize: 10, FileType: "image/png",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := s.do(http.MethodDelete, "/api/admin/tenants/2", s.token(admin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := body["deleted"].(map[string]interface{})
	assert.Equal(t, float64(1), deleted["images"])

	tenants, _, images := s.store.Counts()
	assert.Zero(t, tenants)
	assert.Zero(t, images)

	rec, _ = s.do(http.MethodDelete, "/api/admin/tenants/2", s.token(admin), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminTenantListing(t *testing.T) {
	s := newServer(t, testConfig(t))

	rec, body := s.do(http.MethodGet, "/api/admin/tenants?search=101", s.token(admin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, body["data"], body["tenants"])

	rec, body = s.do(http.MethodGet, "/api/admin/dashboard", s.token(admin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["dashboard"].(map[string]interface{})["totalTenants"])
}

func TestBankInfo(t *testing.T) {
	s := newServer(t, testConfig(t))

	rec, _ := s.do(http.MethodPut, "/api/bank-info", s.token(admin), manager.BankInfoInput{
		BankName: "First Bank", AccountNumber: "123-456",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := s.do(http.MethodGet, "/api/bank-info", s.token(seeded), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "First Bank", body["bankInfo"].(map[string]interface{})["bank_name"])
}

func TestLoginRateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.PerSecond = 1
	cfg.RateLimit.Burst = 2
	s := newServer(t, cfg)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last, _ = s.do(http.MethodPost, "/api/login", "", LoginRequest{Username: "x", Password: "y"})
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "1", last.Header().Get("Retry-After"))

	rec, _ := s.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func verifyGuess(s *server, forwardedFor string) int {
	raw, _ := json.Marshal(EmailCodeRequest{Email: "tenant@example.com", Code: "000000"})
	req := httptest.NewRequest(http.MethodPost, "/api/verify-email-code", bytes.NewReader(raw))
	req.Header.Set("X-Forwarded-For", forwardedFor)
	rec, _ := s.send(req)
	return rec.Code
}

func TestForwardedForCannotDodgeRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.PerSecond = 1
	cfg.RateLimit.Burst = 2
	s := newServer(t, cfg)

	limited := 0
	for i := 0; i < 20; i++ {
		if verifyGuess(s, fmt.Sprintf("10.0.0.%d", i)) == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.GreaterOrEqual(t, limited, 17)
}

func TestForwardedForHonouredFromTrustedProxy(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.PerSecond = 1
	cfg.RateLimit.Burst = 2
	// httptest requests come from 192.0.2.1
	cfg.Server.TrustedProxies = []string{"192.0.2.0/24"}
	s := newServer(t, cfg)

	for i := 0; i < 10; i++ {
		assert.NotEqual(t, http.StatusTooManyRequests, verifyGuess(s, fmt.Sprintf("10.0.0.%d", i)))
	}
	for i := 0; i < 3; i++ {
		verifyGuess(s, "10.0.1.1")
	}
	assert.Equal(t, http.StatusTooManyRequests, verifyGuess(s, "10.0.1.1"))
}
