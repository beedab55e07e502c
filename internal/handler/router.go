package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/agency-portal-bfa-go/internal/domain"
	"github.com/boddenberg/agency-portal-bfa-go/internal/infra/observability"
	"github.com/boddenberg/agency-portal-bfa-go/internal/port"
	"github.com/boddenberg/agency-portal-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services groups the portal services the router exposes. A nil
// Sessions disables every /v1 route except the metrics snapshot.
type Services struct {
	Sessions  *service.SessionManager
	Accounts  *service.AccountService
	Calendar  *service.CalendarSync
	Workspace *service.Workspace
	Directory *service.AgencyDirectory
	Tenants   port.TenantStore
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestInfoMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger, sessionLogFields))
	r.Use(observability.TracingMiddleware)
	r.Use(metricsMiddleware(metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Tenants, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/sync", syncMetricsHandler(metrics))

		if svc.Sessions == nil {
			r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusServiceUnavailable, "portal services not configured")
			}))
			return
		}

		// =============================================
		// Autenticação (public)
		// =============================================
		r.Post("/auth/signup", signUpHandler(svc.Sessions, svc.Accounts, logger))
		r.Post("/auth/login", loginHandler(svc.Sessions, svc.Accounts, logger))
		r.Post("/auth/password/reset", passwordResetHandler(svc.Accounts, logger))

		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(svc.Sessions, logger))

			// =============================================
			// Autenticação (session)
			// =============================================
			r.Post("/auth/logout", logoutHandler(svc.Accounts, logger))
			r.Post("/auth/verification/resend", resendVerificationHandler(svc.Accounts, logger))
			r.Post("/auth/verification/recheck", recheckHandler(svc.Accounts))

			// =============================================
			// Sessão & navegação
			// =============================================
			r.Get("/session", sessionHandler())
			r.Get("/session/stream", sessionStreamHandler(logger))
			r.Put("/session/impersonation", impersonateHandler(logger))
			r.Delete("/session/impersonation", backToDashboardHandler())
			r.Get("/view", viewHandler())

			// =============================================
			// Calendário
			// =============================================
			r.Route("/calendar", func(r chi.Router) {
				r.Get("/entries", listEntriesHandler(svc.Calendar, logger))
				r.Post("/entries", createEntryHandler(svc.Calendar, logger))
				r.Patch("/entries/{entryId}", updateEntryHandler(svc.Calendar, logger))
				r.Delete("/entries/{entryId}", deleteEntryHandler(svc.Calendar, logger))
				r.Post("/entries/{entryId}/toggle", toggleEntryHandler(svc.Calendar, logger))
				r.Get("/mirror", listMirrorHandler(svc.Calendar, logger))
				r.Get("/export.ics", exportCalendarHandler(svc.Calendar, logger))
			})

			// =============================================
			// Foco semanal & arquivos
			// =============================================
			r.Get("/tasks", weeklyFocusHandler(svc.Workspace, logger))
			r.Post("/tasks", addTaskHandler(svc.Workspace, logger))
			r.Post("/tasks/{taskId}/toggle", toggleTaskHandler(svc.Workspace, logger))
			r.Delete("/tasks/{taskId}", deleteTaskHandler(svc.Workspace, logger))
			r.Get("/ideas", listIdeasHandler(svc.Workspace, logger))
			r.Post("/ideas", submitIdeaHandler(svc.Workspace, logger))

			// =============================================
			// Agência
			// =============================================
			r.Route("/agency", func(r chi.Router) {
				r.Get("/directory", directoryHandler(svc.Directory, logger))
				r.Put("/profiles/{uid}/tenant", assignTenantHandler(svc.Directory, logger))
				r.Post("/profiles/{uid}/tenant", createTenantForHandler(svc.Directory, logger))
				r.Put("/profiles/{uid}/role", changeRoleHandler(svc.Directory, logger))
				r.Delete("/profiles/{uid}", deleteProfileHandler(svc.Directory, logger))
				r.Delete("/tenants/{tenantId}", deleteTenantHandler(svc.Directory, logger))
				r.Post("/password-reset", agencyPasswordResetHandler(svc.Directory, logger))
			})
		})
	})

	return r
}

// ============================================================
// Métricas & Health
// ============================================================

func healthzHandler(tenants port.TenantStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "portal-api", Status: "healthy", LastChecked: now},
		}

		if tenants != nil {
			start := time.Now()
			_, err := tenants.List(r.Context())
			status := "healthy"
			if err != nil {
				status = "degraded"
				logger.Warn("health check: store degraded", zap.Error(err))
			}
			services = append(services, domain.ServiceHealth{
				Name: "store", Status: status, LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
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

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func syncMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetSyncSnapshot())
	}
}
