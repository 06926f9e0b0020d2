package infra

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics は発行・検証に関するPrometheusメトリクスを保持する。
type Metrics struct {
	IssuanceTotal     *prometheus.CounterVec
	VerificationTotal *prometheus.CounterVec
	RenderDuration    prometheus.Histogram
}

// NewMetrics はメトリクスを生成しregに登録する。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IssuanceTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certificate_issuance_total",
			Help: "Total number of certificate issuance attempts by result",
		}, []string{"result"}),
		VerificationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certificate_verification_total",
			Help: "Total number of certificate verifications by result",
		}, []string{"result"}),
		RenderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "certificate_render_duration_seconds",
			Help:    "Time spent rendering certificate PDFs",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IssuanceCompleted は発行結果を記録する。
func (m *Metrics) IssuanceCompleted(result string) {
	m.IssuanceTotal.WithLabelValues(result).Inc()
}

// VerificationCompleted は検証結果を記録する。
func (m *Metrics) VerificationCompleted(result string) {
	m.VerificationTotal.WithLabelValues(result).Inc()
}

// ObserveRender はレンダリング時間を記録する。
func (m *Metrics) ObserveRender(d time.Duration) {
	m.RenderDuration.Observe(d.Seconds())
}
