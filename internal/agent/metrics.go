package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the device agent. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Samples  *prometheus.CounterVec
	Polls    *prometheus.CounterVec
	Samplers prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Samples: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timeclock_agent_samples_total",
			Help: "Location samples by outcome",
		}, []string{"outcome"}),
		Polls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timeclock_agent_polls_total",
			Help: "Session status polls by result",
		}, []string{"result"}),
		Samplers: f.NewGauge(prometheus.GaugeOpts{
			Name: "timeclock_agent_sampler_running",
			Help: "1 while a location sampler is running",
		}),
	}
}

func (m *Metrics) incSample(outcome string) {
	if m == nil {
		return
	}
	m.Samples.WithLabelValues(outcome).Inc()
}

func (m *Metrics) incPoll(result string) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(result).Inc()
}

func (m *Metrics) setSampling(on bool) {
	if m == nil {
		return
	}
	if on {
		m.Samplers.Set(1)
		return
	}
	m.Samplers.Set(0)
}
