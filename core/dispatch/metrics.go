package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ridesAssigned       *prometheus.CounterVec
	ridesUnassigned     prometheus.Counter
	assignmentRejected  *prometheus.CounterVec
	assignmentConflicts prometheus.Counter
	assignmentLatency   prometheus.Histogram
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Counter, *prometheus.CounterVec, prometheus.Counter, prometheus.Histogram) {
	assigned := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rides_assigned_total",
			Help: "Number of rides bound to a driver",
		},
		[]string{"reassigned"},
	)
	unassigned := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rides_unassigned_total",
			Help: "Number of rides released from a driver",
		},
	)
	rejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assignments_rejected_total",
			Help: "Number of assignment attempts rejected before commit",
		},
		[]string{"reason"},
	)
	conflicts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_conflicts_total",
			Help: "Number of assignment attempts that surfaced overlapping bookings",
		},
	)
	lat := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assignment_latency_seconds",
			Help:    "Latency of assignment operations including the inline calendar flush",
			Buckets: prometheus.DefBuckets,
		},
	)
	return assigned, unassigned, rejected, conflicts, lat
}

func init() {
	ridesAssigned, ridesUnassigned, assignmentRejected, assignmentConflicts, assignmentLatency = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(ridesAssigned, ridesUnassigned, assignmentRejected, assignmentConflicts, assignmentLatency)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	ridesAssigned, ridesUnassigned, assignmentRejected, assignmentConflicts, assignmentLatency = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
