package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pushtray/pushtray/internal/api/handler"
	apimw "github.com/pushtray/pushtray/internal/api/middleware"
	"github.com/pushtray/pushtray/internal/conn"
	"github.com/pushtray/pushtray/internal/dispatch"
	"github.com/pushtray/pushtray/internal/store"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	st *store.Store,
	mgr *conn.Manager,
	disp *dispatch.Dispatcher,
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
	nh := handler.NewNotificationHandler(st, logger)
	stream := handler.NewStreamHandler(st, logger)
	stats := handler.NewStatsHandler(st, mgr, disp)
	hh := handler.NewHealthHandler(mgr, disp)

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/notifications", nh.Create)
		r.Get("/notifications", nh.List)
		r.Delete("/notifications/{id}", nh.Dismiss)
		r.Delete("/notifications", nh.Clear)

		// Store mutation feed for the presentation layer
		r.Get("/stream", stream.Stream)

		// JSON stats snapshot
		r.Get("/stats", stats.GetStats)
	})

	return r
}
