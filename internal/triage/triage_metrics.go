package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	SubmitsTotal       *prometheus.CounterVec
	PipelinesTotal     *prometheus.CounterVec
	PipelineDuration   *prometheus.HistogramVec
	StageDuration      *prometheus.HistogramVec
	StageDegradedTotal *prometheus.CounterVec
	TiersTotal         *prometheus.CounterVec
	ExportsTotal       *prometheus.CounterVec
	NotifyTotal        *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auricle_submits_total",
			Help: "Total triage submissions by result.",
		}, []string{"result"}),
		PipelinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auricle_pipelines_total",
			Help: "Total pipeline runs by final status.",
		}, []string{"status"}),
		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auricle_pipeline_duration_seconds",
			Help:    "Duration of pipeline runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}, []string{"status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auricle_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}, []string{"stage"}),
		StageDegradedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auricle_stage_degraded_total",
			Help: "Total stage executions that degraded or failed, by stage.",
		}, []string{"stage"}),
		TiersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auricle_tiers_total",
			Help: "Total completed triages by final urgency tier.",
		}, []string{"tier"}),
		ExportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auricle_exports_total",
			Help: "Total EHR export attempts by outcome.",
		}, []string{"outcome"}),
		NotifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auricle_notify_total",
			Help: "Total emergency notifications by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.SubmitsTotal,
		m.PipelinesTotal,
		m.PipelineDuration,
		m.StageDuration,
		m.StageDegradedTotal,
		m.TiersTotal,
		m.ExportsTotal,
		m.NotifyTotal,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnStage: func(stage string, duration float64, degraded bool) {
			m.StageDuration.WithLabelValues(stage).Observe(duration)
			if degraded {
				m.StageDegradedTotal.WithLabelValues(stage).Inc()
			}
		},
		OnComplete: func(e *CompleteEvent) {
			m.PipelinesTotal.WithLabelValues(string(e.Status)).Inc()
			m.PipelineDuration.WithLabelValues(string(e.Status)).Observe(e.Duration)
			if e.Status == StatusReadyForReview {
				m.TiersTotal.WithLabelValues(string(e.Tier)).Inc()
			}
		},
	}
}
