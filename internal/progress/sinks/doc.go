// Package sinks implements progress consumers: a structured log, Prometheus
// gauges, a terminal progress bar and the in-memory run status served by the
// status API.
package sinks
