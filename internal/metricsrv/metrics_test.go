package metricsrv

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistry_RegistersWithoutPanicking(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	if reg == nil {
		t.Fatal("expected a non-nil registry")
	}
}

func TestTickTimer_RecordsDurationAndGeneration(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	timer := reg.StartTick("low-vol")
	timer.Stop()

	count := testutil.ToFloat64(reg.Generations.WithLabelValues("low-vol"))
	if count != 1 {
		t.Fatalf("generations counter = %f, want 1", count)
	}
}

func TestRecordPromotions_IgnoresNonPositive(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	reg.RecordPromotions("high-vol", 0)
	reg.RecordPromotions("high-vol", -3)
	count := testutil.ToFloat64(reg.Promotions.WithLabelValues("high-vol"))
	if count != 0 {
		t.Fatalf("promotions counter = %f, want 0", count)
	}

	reg.RecordPromotions("high-vol", 5)
	count = testutil.ToFloat64(reg.Promotions.WithLabelValues("high-vol"))
	if count != 5 {
		t.Fatalf("promotions counter = %f, want 5", count)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	reg.SetArchiveSize(42)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
