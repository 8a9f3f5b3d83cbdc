package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"tripbuilder/crmsync/internal/api"
	"tripbuilder/crmsync/internal/logging"
	"tripbuilder/crmsync/internal/middleware"
)

// RegisterRoutes builds the ops router. gatherer backs /metrics and may be nil.
func RegisterRoutes(deps *api.Dependencies, handlers *api.Handlers, gatherer prometheus.Gatherer, upSince time.Time) http.Handler {
	r := chi.NewRouter()

	// global middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.Logging)
	r.Use(middleware.MetricsMiddleware(deps.Metrics))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://localhost:8081"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthCheck", api.HealthCheckHandler(deps.Sqlx, deps.Redis, upSince))
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// manual triggers are expensive, one per minute per client
	triggers := middleware.NewRateLimiter(rate.Every(time.Minute), 1)

	r.Route("/api/v1/sync", func(r chi.Router) {
		r.Get("/runs", handlers.ListSyncRuns())
		r.Get("/runs/{id}", handlers.GetSyncRun())
		r.Get("/report", handlers.SyncReport())
		r.Get("/queue", handlers.QueueStatus())

		r.Group(func(r chi.Router) {
			r.Use(triggers.Middleware)
			r.Post("/full", handlers.TriggerFullSync())
			r.Post("/push-pending", handlers.TriggerPushPending())
		})
	})

	logging.Info("Router initialized with metrics and logging middleware")
	return r
}
