package server

import (
	"net/http"

	"github.com/cloo-solutions/procminer/internal/api"
	"github.com/cloo-solutions/procminer/internal/api/handlers"
	"github.com/cloo-solutions/procminer/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

const serviceName = "Process Miner AI"

type RouterConfig struct {
	AnalyzeHandler  *handlers.AnalyzeHandler
	DocumentHandler *handlers.DocumentHandler
	// Metrics serves the Prometheus exposition; /metrics is not mounted when nil.
	Metrics http.Handler
	// MaxUploadBytes bounds /analyze bodies; zero disables the limit.
	MaxUploadBytes int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.CORS)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		api.JSON(w, http.StatusOK, map[string]string{"status": "active", "service": serviceName})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.With(middleware.MaxBodyBytes(cfg.MaxUploadBytes)).Post("/analyze", cfg.AnalyzeHandler.Analyze)
	r.Get("/documents", cfg.DocumentHandler.List)
	r.Get("/document", cfg.DocumentHandler.Get)

	return r
}
