// Package infra contains technical adapters such as the SQLite stores, the
// calendar HTTP client, MQTT notifications and metrics exporters. These
// packages should depend only on the interfaces defined in the core packages.
package infra
