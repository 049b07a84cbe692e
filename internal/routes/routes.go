package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/handlers"
	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/go-chi/chi/v5"
)

// HealthChecker reports Signal Store reachability
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handlers groups the API handlers
type Handlers struct {
	Intelligence *handlers.IntelligenceHandler
	Login        *handlers.LoginHandler
	Orders       *handlers.OrderHandler
	Decisions    *handlers.DecisionHandler
}

// Options carries the cross-cutting dependencies of the /v1 group
type Options struct {
	Tokens    *auth.TokenValidator
	IPConfig  *pkghttp.IPConfig
	RateLimit middleware.RateLimitConfig
	// Health is nil when the engine runs without a Signal Store
	Health HealthChecker
	Logger *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, opts Options) {
	// Public routes
	router.Get("/health", healthHandler(opts.Health))
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Service routes - bearer token required
	router.Route("/v1", func(r chi.Router) {
		r.Use(auth.ServiceAuth(opts.Tokens, opts.Logger))
		r.Use(middleware.RateLimitByIP(opts.RateLimit, opts.IPConfig))

		read := auth.RequireScope(models.ScopeRead)
		evaluate := auth.RequireScope(models.ScopeEvaluate)
		admin := auth.RequireScope(models.ScopeAdmin)

		r.With(read).Get("/intelligence/{ip}", h.Intelligence.GetIntelligence)
		r.With(admin).Post("/intelligence/{ip}/refresh", h.Intelligence.RefreshIntelligence)

		r.Route("/login", func(r chi.Router) {
			r.With(evaluate).Post("/check", h.Login.CheckLogin)
			r.With(evaluate).Post("/failure", h.Login.RecordFailure)
			r.With(evaluate).Post("/success", h.Login.RecordSuccess)
			r.With(read).Get("/state", h.Login.GetState)
			r.With(admin).Post("/unblock", h.Login.Unblock)
		})

		r.With(evaluate).Post("/orders/assess", h.Orders.AssessOrder)

		r.With(evaluate).Post("/decisions", h.Decisions.Decide)
		r.With(read).Get("/decisions", h.Decisions.ListDecisions)
	})
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func healthHandler(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			pkghttp.WriteJSON(w, http.StatusOK, healthResponse{Status: "healthy", Database: "disabled"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			// the engine keeps deciding without the store
			pkghttp.WriteJSON(w, http.StatusOK, healthResponse{Status: "degraded", Database: "down"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, healthResponse{Status: "healthy", Database: "up"})
	}
}
