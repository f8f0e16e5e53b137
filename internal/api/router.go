/**
 * @description
 * HTTP router for the rewards service. Donor routes require a bearer token;
 * /admin routes additionally require the admin role.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: routing and standard middleware.
 * - github.com/go-chi/cors: CORS for the web dashboard.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/herodrop/rewards-service/internal/app"
	"go.uber.org/zap"
)

// RouterConfig carries the router's security settings.
type RouterConfig struct {
	JWTSecret      string
	JWTIssuer      string
	AllowedOrigins []string
	// Limiter may be nil, which disables rate limiting.
	Limiter              app.RateLimiter
	PromptLimitPerMinute int
}

// NewRouter registers every route on a new chi router.
func NewRouter(h *Handlers, cfg RouterConfig, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	limited := func(scope string) func(http.Handler) http.Handler {
		return RateLimit(cfg.Limiter, scope, cfg.PromptLimitPerMinute, logger)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))

		r.With(limited("eligibility")).Post("/eligibility/check", h.CheckEligibility)
		r.With(limited("facilities")).Get("/facilities", h.FindFacilities)
		r.Get("/vendors", h.FindVendors)
		r.Get("/catalog/items", h.ListItems)
		r.Get("/wallet", h.GetWallet)

		r.Route("/redemptions/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Get("/{id}", h.GetSession)
			r.Delete("/{id}", h.CancelSession)
			r.Put("/{id}/location", h.SelectLocation)
			r.With(limited("redemption")).Post("/{id}/proceed", h.ProceedSession)
			r.Post("/{id}/back", h.BackSession)
			r.With(limited("redemption")).Post("/{id}/confirm", h.ConfirmSession)
		})

		r.Post("/appointments", h.BookAppointment)
		r.Get("/appointments/upcoming", h.UpcomingAppointment)
		r.Post("/pledges/{id}/cancel", h.CancelPledge)
		r.Post("/referrals", h.CreditReferral)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/donors", h.RegisterDonor)
			r.Get("/pledges", h.ListPledges)
			r.Post("/pledges/{id}/complete", h.CompletePledge)
			r.Post("/pledges/{id}/cancel", h.AdminCancelPledge)
			r.Get("/redemptions", h.ListRedemptions)
			r.Post("/redemptions/{id}/fulfill", h.FulfillRedemption)
			r.Post("/redemptions/{id}/reject", h.RejectRedemption)
			r.Post("/sms/notifications", h.SendNotification)
			r.Post("/sms/broadcast", h.Broadcast)
		})
	})

	return r
}
