package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewPipelineMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)

	m.ObserveRun("inbound", "ok")
	m.ObserveStepLatency("classify", 0.42)
	m.ObserveTokens("classify", 100, 50)
	m.ObserveFallback("generate")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var pm *PipelineMetrics
	pm.ObserveRun("inbound", "ok")
	pm.ObserveFallback("classify")

	var sm *SchedulerMetrics
	sm.ObserveSweep()
	sm.ObserveAction("executed")
}
