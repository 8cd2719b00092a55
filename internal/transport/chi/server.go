package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/logger"
	"github.com/kailas-cloud/crmdex/internal/metrics"
	searchuc "github.com/kailas-cloud/crmdex/internal/usecase/search"
	"github.com/kailas-cloud/crmdex/internal/version"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency is a named readiness check.
type Dependency struct {
	Name   string
	Pinger Pinger
}

// NewRouter builds the HTTP router: search endpoints, liveness, readiness
// over the backing dependencies, and the prometheus scrape endpoint.
func NewRouter(search *searchuc.Service, log *zap.Logger, apiKeys []string, deps ...Dependency) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady(log, deps))
	r.Handle("/metrics", promhttp.Handler())

	sh := &searchHandlers{search: search}
	r.Route("/v1/search", func(r chi.Router) {
		r.Post("/hybrid", sh.Hybrid)
		r.Post("/text", sh.Text)
		r.Post("/semantic", sh.Semantic)
		r.Post("/global", sh.Global)
	})

	return r
}

// requestLogger stores a request-scoped logger in the context so handlers
// can log with the request id attached.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := log
			if reqID := middleware.GetReqID(r.Context()); reqID != "" {
				l = log.With(zap.String("request_id", reqID))
			}
			next.ServeHTTP(w, r.WithContext(logger.ContextWithLogger(r.Context(), l)))
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func handleReady(log *zap.Logger, deps []Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := make(map[string]string, len(deps))
		ready := true
		for _, d := range deps {
			if err := d.Pinger.Ping(ctx); err != nil {
				log.Warn("readiness check failed",
					zap.String("dependency", d.Name), zap.Error(err))
				checks[d.Name] = err.Error()
				ready = false
				continue
			}
			checks[d.Name] = "ok"
		}

		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "not ready"
		}
		writeJSON(w, status, map[string]any{
			"status": state,
			"checks": checks,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
