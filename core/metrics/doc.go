// Package metrics defines interfaces and records for collecting dispatch
// metrics. Sinks record assignment and calendar synchronisation events;
// concrete sinks (Prometheus, InfluxDB) live under infra/metrics and can be
// combined into a fan-out sink.
package metrics
