package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/talentdesk/recruiter-notify/internal/api/handler"
	apimw "github.com/talentdesk/recruiter-notify/internal/api/middleware"
	"github.com/talentdesk/recruiter-notify/internal/processor"
	"github.com/talentdesk/recruiter-notify/internal/settings"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the ops HTTP surface.
func NewRouter(
	proc *processor.Processor,
	store settings.Store,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	ph := handler.NewPipelineHandler(proc, logger)
	sh := handler.NewSettingsHandler(store, logger)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/queue/status", ph.QueueStatus)
		r.Get("/queue/failed", ph.FailedItems)
		r.Post("/notifications/run", ph.RunEvaluation)
		r.Post("/jobs/{id}/notify-update", ph.NotifyJobUpdate)

		r.Get("/settings", sh.Get)
		r.Put("/settings", sh.Update)
	})

	return r
}
