// Package otel binds authcore metrics to an OpenTelemetry Meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and, per
// latency histogram, a cumulative bucket gauge keyed by an "le" attribute plus a
// count gauge. A single callback reads the snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
