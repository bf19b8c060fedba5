// Package prometheus exposes goSession metrics as a prometheus.Collector.
//
// [NewCollector] wraps a [goSession.Manager]; register it with any registry or
// mount [Collector.Handler]. Counter names are gosession_*_total and the one
// histogram is gosession_validate_latency_seconds.
//
// The collector never registers itself with the default registry.
package prometheus
