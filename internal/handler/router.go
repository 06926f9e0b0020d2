package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"certificate-service/config"
)

// NewRouter はルーターを生成する。gathererがnilなら/metricsは公開しない。
func NewRouter(h *CertificateHandler, cfg *config.Config, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Health)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// ルート定義
	r.Route("/v1/certificates", func(r chi.Router) {
		r.Post("/", h.Issue)
		r.Get("/", h.List)
		r.Get("/{identifier}", h.Verify)
		r.Get("/{identifier}/payload", h.Payload)
		r.Get("/{identifier}/document", h.Document)
	})
	r.Post("/v1/verifications", h.VerifyPayload)

	if cfg != nil && cfg.OtelEnabled {
		return otelhttp.NewHandler(r, "certificate-service",
			otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
				return req.Method + " " + req.URL.Path
			}),
		)
	}
	return r
}
