package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutboxMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.Observe("voucher_issued", "published")
	m.Observe("voucher_issued", "published")
	m.Observe("voucher_issued", "dead_lettered")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	got := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "outbox_events_relayed_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			var outcome string
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" {
					outcome = label.GetValue()
				}
			}
			got[outcome] = metric.GetCounter().GetValue()
		}
	}
	if got["published"] != 2 {
		t.Fatalf("expected 2 published, got %v", got["published"])
	}
	if got["dead_lettered"] != 1 {
		t.Fatalf("expected 1 dead lettered, got %v", got["dead_lettered"])
	}
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.Observe("voucher_issued", "published")
	NewOutboxMetrics(nil).Observe("voucher_issued", "published")
}
