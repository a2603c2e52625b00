package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/eldlit/pet-dispatch-deploy/core/metrics"
)

// NewFromConfig assembles the configured sinks into one Sink. With
// nothing enabled the result is a NopSink.
func NewFromConfig(cfg coremetrics.Config) (coremetrics.Sink, error) {
	var sinks []coremetrics.Sink
	if cfg.PrometheusEnabled {
		prom, err := NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, prom)
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, NewInfluxSinkWithFallback(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		ms := make([]coremetrics.MetricsSink, len(sinks))
		for i, s := range sinks {
			ms[i] = s
		}
		return NewMultiSink(ms...), nil
	}
}
