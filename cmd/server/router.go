package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remit/internal/ledger/handler"
	"remit/internal/platform/metrics"
	"remit/pkg/platform/httputil"
	"remit/pkg/platform/middleware/admin"
	"remit/pkg/platform/middleware/auth"
	"remit/pkg/platform/middleware/metadata"
	"remit/pkg/platform/middleware/request"
	"remit/pkg/platform/middleware/requesttime"
)

type routerDeps struct {
	ledger     *handler.Handler
	validator  auth.CallerValidator
	idempotent func(http.Handler) http.Handler
	throttle   func(http.Handler) http.Handler
	adminToken string
	gatherer   prometheus.Gatherer
	httpMetric *metrics.Metrics
	health     func() error
	logger     *slog.Logger
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Recovery(d.logger))
	r.Use(request.Logger(d.logger))
	r.Use(request.Latency(d.httpMetric))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := d.health(); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})
	r.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(d.adminToken, d.logger))
		d.ledger.RegisterTreasury(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireCaller(d.validator, d.logger))
		r.Use(d.throttle)
		d.ledger.Register(r, d.idempotent)
	})
	return r
}
