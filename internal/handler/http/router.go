// Package http wires the payment API's routes, middleware and
// operational endpoints.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OscarCaraballo97/inferno-payment/pkg/health"
	"github.com/OscarCaraballo97/inferno-payment/pkg/middleware"
)

// NewRouter builds the API router: payment routes plus health, metrics
// and the standard middleware chain.
func NewRouter(payments *PaymentHandler, healthHandler *health.Handler, l *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(l))
	r.Use(middleware.RequestLogging(l))
	r.Use(middleware.PrometheusMetrics("payment-api"))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Post("/", payments.Create)
		r.Get("/{traceId}", payments.Get)
	})

	return r
}
