// Package metrics holds the attendance Prometheus collectors. All methods are
// nil-safe so tests and tools can run without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CheckIns       *prometheus.CounterVec
	CheckOuts      prometheus.Counter
	AutoCloses     prometheus.Counter
	Rejections     *prometheus.CounterVec
	PingsRecorded  prometheus.Counter
	PingsDropped   *prometheus.CounterVec
	LateMinutes    prometheus.Histogram
	SessionHours   *prometheus.HistogramVec
	SweepDuration  prometheus.Histogram
	SweepOutcomes  *prometheus.CounterVec
	GeocodeResults *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CheckIns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timeclock_attendance_check_ins_total",
			Help: "Successful check-ins by punctuality",
		}, []string{"punctuality"}),
		CheckOuts: f.NewCounter(prometheus.CounterOpts{
			Name: "timeclock_attendance_check_outs_total",
			Help: "Successful user check-outs",
		}),
		AutoCloses: f.NewCounter(prometheus.CounterOpts{
			Name: "timeclock_attendance_auto_closes_total",
			Help: "Sessions closed by the auto-closer",
		}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timeclock_attendance_rejections_total",
			Help: "Rejected check-ins and check-outs by error code",
		}, []string{"operation", "code"}),
		PingsRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "timeclock_attendance_pings_recorded_total",
			Help: "Location pings appended",
		}),
		PingsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timeclock_attendance_pings_dropped_total",
			Help: "Location pings discarded by reason",
		}, []string{"reason"}),
		LateMinutes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "timeclock_attendance_late_minutes",
			Help:    "Minutes past cutoff for late check-ins",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120, 240},
		}),
		SessionHours: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timeclock_attendance_session_hours",
			Help:    "Hours worked per closed session",
			Buckets: []float64{1, 2, 4, 6, 8, 9, 10, 12, 16, 24},
		}, []string{"status"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "timeclock_attendance_sweep_duration_seconds",
			Help:    "Duration of one auto-close sweep",
			Buckets: prometheus.DefBuckets,
		}),
		SweepOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timeclock_attendance_sweep_sessions_total",
			Help: "Sessions handled by the auto-closer by outcome",
		}, []string{"outcome"}),
		GeocodeResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timeclock_attendance_geocode_total",
			Help: "Reverse geocode attempts made while recording locations",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncCheckIn(late bool, lateMinutes int) {
	if m == nil {
		return
	}
	if late {
		m.CheckIns.WithLabelValues("late").Inc()
		m.LateMinutes.Observe(float64(lateMinutes))
		return
	}
	m.CheckIns.WithLabelValues("on_time").Inc()
}

func (m *Metrics) IncCheckOut(hours float64) {
	if m == nil {
		return
	}
	m.CheckOuts.Inc()
	m.SessionHours.WithLabelValues("CLOSED").Observe(hours)
}

func (m *Metrics) IncAutoClose(hours float64) {
	if m == nil {
		return
	}
	m.AutoCloses.Inc()
	m.SessionHours.WithLabelValues("AUTO_CLOSED").Observe(hours)
}

func (m *Metrics) IncRejection(operation, code string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) IncPingRecorded() {
	if m == nil {
		return
	}
	m.PingsRecorded.Inc()
}

func (m *Metrics) IncPingDropped(reason string) {
	if m == nil {
		return
	}
	m.PingsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveSweep(seconds float64) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(seconds)
}

func (m *Metrics) IncSweepOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SweepOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncGeocode(result string) {
	if m == nil {
		return
	}
	m.GeocodeResults.WithLabelValues(result).Inc()
}
