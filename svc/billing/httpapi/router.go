// Package httpapi exposes the billing service over HTTP with chi: checkout
// sessions, subscription queries, team limit changes and the payment
// processor webhook, plus health and Prometheus endpoints.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/leaguebilling/pkg/httpserver"
	"github.com/dmitrymomot/leaguebilling/pkg/logger"
	"github.com/dmitrymomot/leaguebilling/pkg/requestid"
)

type RouterOption func(*routerConfig)

type routerConfig struct {
	log          *slog.Logger
	gatherer     prometheus.Gatherer
	checks       []httpserver.Check
	checkTimeout time.Duration
}

func WithLogger(l *slog.Logger) RouterOption {
	return func(c *routerConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) RouterOption {
	return func(c *routerConfig) {
		if g != nil {
			c.gatherer = g
		}
	}
}

// WithReadinessChecks adds dependencies probed by /health/ready.
func WithReadinessChecks(timeout time.Duration, checks ...httpserver.Check) RouterOption {
	return func(c *routerConfig) {
		if timeout > 0 {
			c.checkTimeout = timeout
		}
		c.checks = append(c.checks, checks...)
	}
}

// NewRouter builds the full HTTP surface around svc.
func NewRouter(svc Service, opts ...RouterOption) http.Handler {
	cfg := routerConfig{
		log:          logger.Discard(),
		gatherer:     prometheus.DefaultGatherer,
		checkTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.RealIP)
	r.Use(accessLog(cfg.log))
	r.Use(middleware.Recoverer)

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(cfg.log, cfg.checkTimeout, cfg.checks...))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))

	NewHandler(svc, cfg.log).Routes(r)
	return r
}

func accessLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.DebugContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				logger.Duration(time.Since(start)),
			)
		})
	}
}
