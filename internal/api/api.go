package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "rentledger/docs"
	"rentledger/internal/auth"
	"rentledger/internal/config"
	"rentledger/internal/ledger"
	"rentledger/internal/manager"
	"rentledger/internal/media"
	"rentledger/internal/metrics"
	"rentledger/internal/storage"
)

type API struct {
	Gate      *auth.Gate
	TenantMgr *manager.TenantManager
	Ledger    *ledger.Ledger
	Media     *media.Registry
	Store     *storage.Store
	Cfg       *config.Config
	Log       logrus.FieldLogger

	limiter *RateLimiter
}

func NewAPI(gate *auth.Gate, tm *manager.TenantManager, l *ledger.Ledger, reg *media.Registry, store *storage.Store, cfg *config.Config, log logrus.FieldLogger) *API {
	return &API{
		Gate:      gate,
		TenantMgr: tm,
		Ledger:    l,
		Media:     reg,
		Store:     store,
		Cfg:       cfg,
		Log:       log.WithField("component", "api"),
		limiter:   NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, log),
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(trustedRealIP(a.Cfg.Server.TrustedProxies, a.Log))
	r.Use(a.logRequests)
	r.Use(instrument)
	r.Use(a.recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{"success": false, "message": "endpoint not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{"success": false, "message": "method not allowed"})
	})

	// Public
	r.Get("/health", a.Health)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	prefix := "/" + strings.Trim(a.Cfg.Uploads.PublicPrefix, "/")
	r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(a.Cfg.Uploads.Dir))))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", a.APIHealth)

		r.Group(func(r chi.Router) {
			r.Use(a.limiter.Handler)

			r.Post("/login", a.Login)
			r.Post("/register", a.Register)
			r.Post("/send-email-code", a.SendEmailCode)
			r.Post("/verify-email-code", a.VerifyEmailCode)
			r.Post("/reset-password", a.ResetPassword)
		})

		// Secured
		r.Group(func(r chi.Router) {
			r.Use(a.Gate.Middleware(a.writeError))

			r.Get("/profile", a.Profile)
			r.Get("/bank-info", a.GetBankInfo)
			r.Put("/bank-info", a.UpdateBankInfo)

			r.Get("/payments", a.ListPayments)
			r.Post("/payments", a.CreatePayment)
			r.Put("/payments/{id}", a.UpdatePaymentStatus)

			r.Get("/images", a.ListImages)
			r.Post("/images/upload", a.UploadImage)
			r.Post("/images/upload-multiple", a.UploadImages)
			r.Post("/images/save", a.SaveImage)
			r.Delete("/images/{id}", a.DeleteImage)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/dashboard", a.Dashboard)
				r.Get("/tenants", a.ListTenants)
				r.Delete("/tenants/{id}", a.DeleteTenant)
				r.Get("/tenant-options", a.TenantOptions)
				r.Get("/payments/paginated", a.PaginatePayments)
				r.Put("/payments/{id}/status", a.UpdatePaymentStatus)
				r.Get("/images/paginated", a.PaginateImages)
			})
		})
	})

	return r
}
