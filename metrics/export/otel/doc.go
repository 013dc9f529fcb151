// Package otel provides OpenTelemetry metric exporter bindings for the
// engine's counters.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine metric.
// A single callback reads [authcore.Engine.MetricsSnapshot] on each
// collection cycle. Callers own the MeterProvider and supply the Meter.
package otel
