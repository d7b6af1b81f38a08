package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func family(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not registered", name)
	return nil
}

func counterSum(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	var total float64
	for _, m := range family(t, reg, name).GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveSubmission("doctor-appointment", "created")
	m.ObserveSubmission("doctor-appointment", "conflict")
	m.ObserveSubmission("doctor-appointment", "persistence_error")
	m.ObserveStaleReference("price_changed")
	m.ObserveHandoff()
	m.ObserveStoreCall("create", time.Now(), errors.New("boom"))

	if got := counterSum(t, reg, "healthcare_booking_submitted_total"); got != 3 {
		t.Fatalf("expected 3 submissions, got %v", got)
	}
	if got := counterSum(t, reg, "healthcare_booking_slot_conflicts_total"); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}
	if got := counterSum(t, reg, "healthcare_booking_persistence_failures_total"); got != 1 {
		t.Fatalf("expected 1 persistence failure, got %v", got)
	}
	if got := counterSum(t, reg, "healthcare_booking_handoff_links_total"); got != 1 {
		t.Fatalf("expected 1 handoff link, got %v", got)
	}
	histogram := family(t, reg, "healthcare_store_call_duration_seconds")
	if got := histogram.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Fatalf("expected one latency sample, got %d", got)
	}
}

func TestCatalogAndOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCatalogMetrics(reg)
	o := NewOutboxMetrics(reg)
	c.ObserveWrite("doctor", "create", "ok")
	c.ObserveUpload("catalog", "degraded")
	o.ObserveDelivery("booking.created", "delivered")
	o.ObserveBatch(3)

	uploads := family(t, reg, "healthcare_media_uploads_total").GetMetric()
	if len(uploads) != 1 || uploads[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one degraded upload, got %v", uploads)
	}
	gauge := family(t, reg, "healthcare_outbox_last_batch_size").GetMetric()[0].GetGauge().GetValue()
	if gauge != 3 {
		t.Fatalf("expected batch gauge 3, got %v", gauge)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var b *BookingMetrics
	b.ObserveSubmission("lab-test", "created")
	b.ObserveStaleReference("unavailable")
	b.ObserveStatusChange("pending", "confirmed")
	b.ObserveHandoff()
	b.ObserveStoreCall("get", time.Now(), nil)

	var c *CatalogMetrics
	c.ObserveWrite("offer", "retire", "ok")
	c.ObserveUpload("prescription", "error")

	var o *OutboxMetrics
	o.ObserveDelivery("x", "failed")
	o.ObserveBatch(1)
}
