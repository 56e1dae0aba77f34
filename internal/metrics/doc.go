// Package metrics records compile gateway metrics.
//
// Components receive a Recorder and never check whether metrics are enabled:
// NoopRecorder is injected when metrics.enabled is false, PrometheusRecorder
// when it is true. HTTPHandler serves the Prometheus registry on /metrics.
package metrics
