package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/delivery/http/handler"
	"github.com/user/crawltest-service/internal/delivery/http/middleware"
	"github.com/user/crawltest-service/pkg/metrics"
)

const requestTimeout = 30 * time.Second

// New wires the API routes. gatherer backs the /metrics endpoint.
func New(h *handler.Handler, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger.Named("http")))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics(m))

	r.Get("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))

		r.Get("/health", h.HandleHealthCheck)

		r.Post("/websites/{id}/crawl", h.HandleCrawl)
		r.Get("/websites/{id}/status", h.HandleWebsiteStatus)
		r.Post("/websites/{id}/generate-tests", h.HandleGenerateTests)

		r.Post("/test-runs", h.HandleCreateTestRuns)
		r.Get("/test-runs/{id}", h.HandleGetTestRun)

		r.Post("/schedules/{id}/dispatch", h.HandleDispatchSchedule)
		r.Get("/jobs/{id}", h.HandleGetJob)
	})

	return r
}
