package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the engine's operational counters on a Prometheus
// registry. All metrics are optional: a nil *Metrics disables recording.
type Metrics struct {
	CalcDuration       *prometheus.HistogramVec
	ScenariosEvaluated *prometheus.CounterVec
	FlowRecords        prometheus.Gauge
	ActiveScenarios    prometheus.Gauge
	CalcFailures       *prometheus.CounterVec
}

// NewMetrics creates and registers the engine metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CalcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "irrbb_calculation_duration_seconds",
				Help:    "Duration of a full multi-scenario calculation in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0},
			},
			[]string{"result"},
		),
		ScenariosEvaluated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "irrbb_scenarios_evaluated_total",
				Help: "Scenario evaluations by outcome",
			},
			[]string{"result"},
		),
		FlowRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "irrbb_cashflow_records",
				Help: "Cashflow records held by the most recent calculation",
			},
		),
		ActiveScenarios: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "irrbb_active_scenarios",
				Help: "Scenario evaluations currently in flight",
			},
		),
		CalcFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "irrbb_calculation_failures_total",
				Help: "Failed calculations by failure kind",
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(m.CalcDuration, m.ScenariosEvaluated, m.FlowRecords, m.ActiveScenarios, m.CalcFailures)
	return m
}

func (m *Metrics) observeCalc(result string, seconds float64) {
	if m == nil {
		return
	}
	m.CalcDuration.WithLabelValues(result).Observe(seconds)
}

func (m *Metrics) scenarioDone(result string) {
	if m == nil {
		return
	}
	m.ScenariosEvaluated.WithLabelValues(result).Inc()
}

func (m *Metrics) setFlowRecords(n int) {
	if m == nil {
		return
	}
	m.FlowRecords.Set(float64(n))
}

func (m *Metrics) scenarioStarted() {
	if m == nil {
		return
	}
	m.ActiveScenarios.Inc()
}

func (m *Metrics) scenarioFinished() {
	if m == nil {
		return
	}
	m.ActiveScenarios.Dec()
}

func (m *Metrics) failure(kind FailureKind) {
	if m == nil {
		return
	}
	m.CalcFailures.WithLabelValues(string(kind)).Inc()
}
