package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/yusufekorman/ratelimit-proxy/internal/auth"
	"github.com/yusufekorman/ratelimit-proxy/internal/config"
	"github.com/yusufekorman/ratelimit-proxy/internal/obs"
)

// New assembles the HTTP surface: the two service routes, the metrics
// endpoint, and the middleware chain in front of them.
func New(cfg *config.Root, log zerolog.Logger, guard *auth.Guard, h *Handlers, metrics *obs.Metrics, reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ratelimit", h.RateLimit)
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET "+cfg.Observability.PrometheusPath,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// /health carries only the bearer token; /metrics is unauthenticated.
	bearerOnly := map[string]struct{}{"/health": {}}
	skip := map[string]struct{}{cfg.Observability.PrometheusPath: {}}

	onReject := func(k auth.Kind) {
		metrics.AuthRejections.WithLabelValues(string(k)).Inc()
	}

	return Chain(
		mux,
		obs.Logger(log),
		metrics.Middleware(skip),
		BodyLimit(int(cfg.Server.MaxBody())),
		guard.Middleware(bearerOnly, skip, onReject),
	)
}
