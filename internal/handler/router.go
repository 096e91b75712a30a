package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/infra/observability"
	"github.com/boddenberg/fintrack-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger is implemented by the durable storage.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups what the local API exposes. Any field may be nil, in
// which case its routes are not mounted.
type Services struct {
	Session     *service.SessionStore
	Finance     *service.FinanceAggregator
	Debts       *service.DebtAggregator
	Preferences *service.PreferenceStore
	Storage     Pinger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc, logger))
	r.Get("/readyz", readyzHandler(svc.Session))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/client", clientMetricsHandler(metrics))

		if svc.Session != nil {
			r.Route("/session", func(r chi.Router) {
				r.Get("/", sessionStateHandler(svc.Session))
				r.Post("/login", loginHandler(svc.Session, logger))
				r.Post("/register", registerHandler(svc.Session, logger))
				r.Post("/logout", logoutHandler(svc.Session))
				r.Post("/refresh", refreshHandler(svc.Session, logger))
				r.Post("/clear-error", sessionClearErrorHandler(svc.Session))
			})
		}

		if svc.Preferences != nil {
			r.Get("/preferences", getPreferencesHandler(svc.Preferences, logger))
			r.Put("/preferences", putPreferencesHandler(svc.Preferences, logger))
		}

		r.Group(func(r chi.Router) {
			if svc.Session != nil {
				r.Use(RequireSession(svc.Session, logger))
			}
			if svc.Finance != nil {
				r.Route("/finance", func(r chi.Router) { mountFinance(r, svc.Finance, logger) })
			}
			if svc.Debts != nil {
				r.Route("/debts", func(r chi.Router) { mountDebts(r, svc.Debts, logger) })
			}
		})
	})

	return r
}

// ============================================================
// Health & metrics
// ============================================================

func healthzHandler(svc Services, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "fintrack", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if svc.Storage != nil {
			start := time.Now()
			err := svc.Storage.Ping(ctx)
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				logger.Warn("storage ping failed", zap.Error(err))
				status = "unhealthy"
			}
			services = append(services, domain.ServiceHealth{
				Name: "storage", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		if svc.Session != nil {
			status := "healthy"
			if svc.Session.State().Status == domain.SessionError {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{Name: "session", Status: status, LastChecked: now})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		code := http.StatusOK
		if overallStatus == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

// readyzHandler reports not ready until the stored session has been resolved.
func readyzHandler(session *service.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session != nil && session.State().Status == domain.SessionCheckingAuth {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "checking_auth"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func clientMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
