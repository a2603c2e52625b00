package calendar

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncSuccess   *prometheus.CounterVec
	syncFailure   *prometheus.CounterVec
	syncLatency   *prometheus.HistogramVec
	outboxPending prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.HistogramVec, prometheus.Gauge) {
	suc := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_sync_success_total",
			Help: "Number of calendar events synchronised successfully",
		},
		[]string{"action"},
	)
	fail := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_sync_failure_total",
			Help: "Number of failed calendar synchronisation attempts",
		},
		[]string{"action"},
	)
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calendar_sync_latency_seconds",
			Help:    "Latency of calendar synchronisation attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
	pend := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "calendar_outbox_pending",
			Help: "Number of outbox jobs awaiting synchronisation",
		},
	)
	return suc, fail, lat, pend
}

func init() {
	syncSuccess, syncFailure, syncLatency, outboxPending = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers calendar metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(syncSuccess, syncFailure, syncLatency, outboxPending)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	syncSuccess, syncFailure, syncLatency, outboxPending = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
