package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service. Methods are nil-safe
// so components can run without metrics wired (tests, tooling).
type Metrics struct {
	RequestsCreated      prometheus.Counter
	RequestsAssigned     *prometheus.CounterVec
	StatusTransitions    *prometheus.CounterVec
	AvailabilityUpdates  *prometheus.CounterVec
	DoctorsForcedOffline prometheus.Counter
	AutoAssignRuns       prometheus.Counter
	CacheHits            prometheus.Counter
	CacheMisses          prometheus.Counter
	MatchDuration        prometheus.Histogram
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carematch_consultation_requests_created_total",
			Help: "Total consultation requests created",
		}),
		RequestsAssigned: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carematch_consultation_requests_assigned_total",
			Help: "Total request assignments by trigger",
		}, []string{"trigger"}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carematch_request_status_transitions_total",
			Help: "Total request status transitions by target status",
		}, []string{"status"}),
		AvailabilityUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carematch_availability_updates_total",
			Help: "Total availability upserts by resulting online state",
		}, []string{"online"}),
		DoctorsForcedOffline: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carematch_doctors_forced_offline_total",
			Help: "Total doctors forced offline by stale-availability cleanup",
		}),
		AutoAssignRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carematch_auto_assign_runs_total",
			Help: "Total auto-assignment batch runs",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carematch_availability_cache_hits_total",
			Help: "Availability cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "carematch_availability_cache_misses_total",
			Help: "Availability cache misses or expiries",
		}),
		MatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "carematch_match_duration_seconds",
			Help:    "Latency of best-match selection",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		}),
	}
}

func (m *Metrics) IncRequestsCreated() {
	if m == nil {
		return
	}
	m.RequestsCreated.Inc()
}

func (m *Metrics) IncRequestsAssigned(trigger string) {
	if m == nil {
		return
	}
	m.RequestsAssigned.WithLabelValues(trigger).Inc()
}

func (m *Metrics) IncStatusTransition(status string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncAvailabilityUpdate(online bool) {
	if m == nil {
		return
	}
	if online {
		m.AvailabilityUpdates.WithLabelValues("true").Inc()
		return
	}
	m.AvailabilityUpdates.WithLabelValues("false").Inc()
}

func (m *Metrics) AddDoctorsForcedOffline(count int) {
	if m == nil {
		return
	}
	m.DoctorsForcedOffline.Add(float64(count))
}

func (m *Metrics) IncAutoAssignRuns() {
	if m == nil {
		return
	}
	m.AutoAssignRuns.Inc()
}

func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

func (m *Metrics) ObserveMatchDuration(seconds float64) {
	if m == nil {
		return
	}
	m.MatchDuration.Observe(seconds)
}
