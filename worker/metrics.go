package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics records gate and run activity. A nil *Metrics records nothing.
type Metrics struct {
	initAttempts *prometheus.CounterVec
	initDuration prometheus.Histogram
	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
	gateState    *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		initAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offload_init_attempts_total",
				Help: "Module initialization attempts by outcome.",
			},
			[]string{"outcome"},
		),
		initDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "offload_init_duration_seconds",
				Help:    "Time spent in module initialization.",
				Buckets: prometheus.DefBuckets,
			},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offload_runs_total",
				Help: "Module runs by outcome.",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "offload_run_duration_seconds",
				Help:    "Time spent in module runs.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
		),
		gateState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "offload_gate_state",
				Help: "Current initialization state; the active state reads 1.",
			},
			[]string{"state"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.initAttempts, m.initDuration, m.runsTotal, m.runDuration, m.gateState)
	}
	return m
}

func outcome(failed bool) string {
	if failed {
		return outcomeFailure
	}
	return outcomeSuccess
}

func (m *Metrics) observeInit(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.initAttempts.WithLabelValues(outcome(failed)).Inc()
	m.initDuration.Observe(d.Seconds())
}

func (m *Metrics) observeRun(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome(failed)).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	for _, st := range []State{Uninitialized, Initializing, Ready, Failed} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.gateState.WithLabelValues(st.String()).Set(v)
	}
}
