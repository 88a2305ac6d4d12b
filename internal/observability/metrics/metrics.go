package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for conversation pipeline runs.
type PipelineMetrics struct {
	runsTotal      *prometheus.CounterVec
	stepLatency    *prometheus.HistogramVec
	tokensTotal    *prometheus.CounterVec
	fallbacksTotal *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total pipeline runs by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		stepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadflow",
			Subsystem: "pipeline",
			Name:      "step_latency_seconds",
			Help:      "Latency of pipeline steps",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"step"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "pipeline",
			Name:      "llm_tokens_total",
			Help:      "LLM tokens consumed by step and direction",
		}, []string{"step", "direction"}),
		fallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "pipeline",
			Name:      "step_fallbacks_total",
			Help:      "Step fallbacks taken after provider or parse failures",
		}, []string{"step"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.stepLatency, m.tokensTotal, m.fallbacksTotal)
	return m
}

func (m *PipelineMetrics) ObserveRun(trigger, outcome string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(trigger, outcome).Inc()
}

func (m *PipelineMetrics) ObserveStepLatency(step string, seconds float64) {
	if m == nil {
		return
	}
	m.stepLatency.WithLabelValues(step).Observe(seconds)
}

func (m *PipelineMetrics) ObserveTokens(step string, input, output int) {
	if m == nil {
		return
	}
	if input > 0 {
		m.tokensTotal.WithLabelValues(step, "input").Add(float64(input))
	}
	if output > 0 {
		m.tokensTotal.WithLabelValues(step, "output").Add(float64(output))
	}
}

func (m *PipelineMetrics) ObserveFallback(step string) {
	if m == nil {
		return
	}
	m.fallbacksTotal.WithLabelValues(step).Inc()
}

// SchedulerMetrics exposes counters for the follow-up sweep.
type SchedulerMetrics struct {
	sweepsTotal  prometheus.Counter
	actionsTotal *prometheus.CounterVec
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		sweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "scheduler",
			Name:      "sweeps_total",
			Help:      "Total follow-up sweep iterations",
		}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "scheduler",
			Name:      "actions_total",
			Help:      "Scheduled actions processed by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sweepsTotal, m.actionsTotal)
	return m
}

func (m *SchedulerMetrics) ObserveSweep() {
	if m == nil {
		return
	}
	m.sweepsTotal.Inc()
}

func (m *SchedulerMetrics) ObserveAction(result string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(result).Inc()
}
