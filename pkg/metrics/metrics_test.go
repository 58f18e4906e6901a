package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r.MacroSteps == nil || r.Branches == nil || r.RemodelDuration == nil {
		t.Fatal("Expected all metrics to be initialised")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialised")
	}
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.RecordStep(1, 2, 3, 4)
	r.RecordBranches("tip", 2)
	r.RecordRemodel(1, 2, 3, 4, 5, time.Second)
	r.RecordTransit(2.5)
	r.RecordRun("completed", false)
}

func TestRecordStep(t *testing.T) {
	r := NewRegistry()
	r.RecordStep(0.005, 10, 12, 3)
	r.RecordStep(0.010, 11, 13, 4)

	var m dto.Metric
	if err := r.MacroSteps.Write(&m); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if m.Counter.GetValue() != 2 {
		t.Errorf("Expected 2 macro steps, got %v", m.Counter.GetValue())
	}
	if err := r.Tips.Write(&m); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if m.Gauge.GetValue() != 4 {
		t.Errorf("Expected 4 tips, got %v", m.Gauge.GetValue())
	}
}

func TestRecordBranchesByTrigger(t *testing.T) {
	r := NewRegistry()
	r.RecordBranches("tip", 2)
	r.RecordBranches("shear", 1)
	r.RecordBranches("tip", 0)

	c, err := r.Branches.GetMetricWithLabelValues("tip")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if m.Counter.GetValue() != 2 {
		t.Errorf("Expected 2 tip branches, got %v", m.Counter.GetValue())
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRegistry()
	r.RecordRun("aborted", true)
	r.RecordTransit(2.5)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{"angioflow_runs_total", "angioflow_aborts_total 1", "angioflow_max_transit_time_seconds 2.5"} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected %q in metrics output", name)
		}
	}
}
