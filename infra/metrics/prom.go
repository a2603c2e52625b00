package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/eldlit/pet-dispatch-deploy/core/metrics"
)

// PromSink records assignment events in Prometheus metrics.
type PromSink struct {
	events  *prometheus.CounterVec
	syncs   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewPromSink registers assignment metrics on the default Prometheus
// registerer. The Prometheus server should be started separately using
// cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assignment_events_total",
		Help: "Total number of assignment state changes",
	}, []string{"action", "synced"})
	syncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_sync_events_total",
		Help: "Total number of calendar synchronisation attempts",
	}, []string{"action", "failed"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calendar_sync_attempt_seconds",
		Help:    "Latency of individual calendar synchronisation attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	if err := reg.Register(events); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			events = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(syncs); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			syncs = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{events: events, syncs: syncs, latency: latency}, nil
}

// RecordAssignment increments the counter for each assignment record.
func (s *PromSink) RecordAssignment(recs []coremetrics.AssignmentRecord) error {
	for _, r := range recs {
		s.events.WithLabelValues(r.Action, strconv.FormatBool(r.Synced)).Inc()
	}
	return nil
}

// RecordCalendarSync records one synchronisation attempt.
func (s *PromSink) RecordCalendarSync(rec coremetrics.CalendarSyncRecord) error {
	s.syncs.WithLabelValues(rec.Action, strconv.FormatBool(rec.Error != "")).Inc()
	s.latency.WithLabelValues(rec.Action).Observe(rec.Latency.Seconds())
	return nil
}
