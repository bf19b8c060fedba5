// Package otel publishes goSession counters through an OpenTelemetry meter.
//
// [NewExporter] registers one Int64ObservableCounter per counter and, for the
// validation latency histogram, a bucket gauge keyed by an "le" attribute plus a
// count gauge. One callback reads [goSession.Manager.MetricsSnapshot] per
// collection. Callers own the MeterProvider.
package otel
