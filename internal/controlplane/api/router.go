// Package api wires the task engine's REST handlers onto a chi router and
// an http.Server with graceful shutdown, grounded on the teacher's
// pkg/controlplane/api package.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/taskengine/internal/controlplane/api/handlers"
	"github.com/marmos91/taskengine/internal/logger"
	"github.com/marmos91/taskengine/internal/registry"
	"github.com/marmos91/taskengine/internal/tasklog"
	"github.com/marmos91/taskengine/internal/taskmeta"
)

// NewRouter builds the chi router for the REST API (spec.md §6/§7).
//
// Routes:
//   - GET  /metrics                                         Prometheus scrape target
//   - GET  /health, /health/ready                          liveness/readiness
//   - POST /api/v1/tasks                                    create_task
//   - GET  /api/v1/tasks                                     list_tasks
//   - GET  /api/v1/tasks/{id}                                 get_task
//   - POST /api/v1/tasks/{id}/execute                          execute
//   - POST /api/v1/tasks/{id}/pause                             pause
//   - GET  /api/v1/tasks/{id}/progress                          get_progress
//   - GET  /api/v1/tasks/{id}/queues/{queue}                     list_queue_items
//   - DELETE /api/v1/tasks/{id}/queues/{queue}                   delete_queue_items
//   - POST /api/v1/tasks/{id}/inputs                             add_inputs
//   - GET  /api/v1/tasks/{id}/logs                               download_logs
//   - GET  /api/v1/data-sources/{data_source}/logs                download_client_logs
func NewRouter(meta *taskmeta.Store, reg *registry.Registry, taskLogs *tasklog.Store, queueDBDir, clientLogDir string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Handle("/metrics", promhttp.Handler())

	healthHandler := handlers.NewHealthHandler(meta)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	taskHandler := handlers.NewTaskHandler(meta, reg, taskLogs, queueDBDir, clientLogDir)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.Create)
			r.Get("/", taskHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", taskHandler.Get)
				r.Post("/execute", taskHandler.Execute)
				r.Post("/pause", taskHandler.Pause)
				r.Get("/progress", taskHandler.Progress)
				r.Post("/inputs", taskHandler.AddInputs)
				r.Get("/logs", taskHandler.DownloadLogs)

				r.Route("/queues/{queue}", func(r chi.Router) {
					r.Get("/", taskHandler.ListQueueItems)
					r.Delete("/", taskHandler.DeleteQueueItems)
				})
			})
		})

		r.Get("/data-sources/{data_source}/logs", taskHandler.DownloadClientLogs)
	})

	return r
}

// isHealthPath reports whether path is a healthcheck endpoint, so
// requestLogger can keep those out of INFO-level noise.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs each request's start (DEBUG) and completion (INFO,
// DEBUG for healthchecks), following the teacher's requestLogger shape.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
