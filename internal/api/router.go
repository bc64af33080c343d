package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"travelguard/antifraud/internal/logging"
	"travelguard/antifraud/internal/metrics"
)

// APIKeyHeader carries the shared API key.
const APIKeyHeader = "X-API-Key"

// RouterConfig holds the router's optional pieces.
type RouterConfig struct {
	APIKey string       // empty disables the key check
	Alerts http.Handler // websocket alert stream; nil leaves /ws/alerts unrouted
	Logger *slog.Logger
}

// NewRouter creates and returns a configured Chi router.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// ── Operations ────────────────────────────────────────────────────────────
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]string{"status": "ok", "service": "antifraud"})
	})
	r.Get("/health/ready", h.Ready)
	r.Handle("/metrics", metrics.Handler())

	if cfg.Alerts != nil {
		r.Handle("/ws/alerts", cfg.Alerts)
	}

	// ── API ───────────────────────────────────────────────────────────────────
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(requireAPIKey(cfg.APIKey))

			r.Post("/check", h.Check)

			r.Route("/blacklist", func(r chi.Router) {
				r.Get("/", h.ListBlacklist)
				r.Post("/", h.AddBlacklist)
				r.Delete("/{ip}", h.RemoveBlacklist)
			})
		})

		r.Route("/checks", func(r chi.Router) {
			r.Get("/", h.ListChecks)
			r.Get("/{id}", h.GetCheck)
		})

		r.Get("/stats/summary", h.Summary)
		r.Get("/ml/anomalies", h.Anomalies)
	})

	return r
}

// requestLogger emits one slog record per request and puts a request-scoped
// logger into the context.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			reqID := middleware.GetReqID(r.Context())
			ctx := logging.WithRequestID(r.Context(), reqID)
			ctx = logging.WithLogger(ctx, logger)

			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.Info("http",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", reqID,
			)
		})
	}
}

// requireAPIKey rejects requests whose X-API-Key does not match key.
func requireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
