package infra

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.IssuanceCompleted("success")
	m.IssuanceCompleted("success")
	m.IssuanceCompleted("duplicate")
	m.VerificationCompleted("not_found")
	m.ObserveRender(120 * time.Millisecond)

	if got := testutil.ToFloat64(m.IssuanceTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("want 2 successful issuances, got %v", got)
	}
	if got := testutil.ToFloat64(m.IssuanceTotal.WithLabelValues("duplicate")); got != 1 {
		t.Errorf("want 1 duplicate issuance, got %v", got)
	}
	if got := testutil.ToFloat64(m.VerificationTotal.WithLabelValues("not_found")); got != 1 {
		t.Errorf("want 1 not_found verification, got %v", got)
	}
	if got := testutil.CollectAndCount(m.RenderDuration); got != 1 {
		t.Errorf("want 1 render histogram, got %d", got)
	}
}
