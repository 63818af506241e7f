// Package prometheus exposes authcore metrics as a prometheus.Collector.
//
// [NewCollector] reads [authcore.Engine.MetricsSnapshot] on every scrape and emits
// const metrics: authcore_*_total counters and the validate and rotate latency
// histograms. Register it on your own registry, or mount [Handler] which builds a
// private one.
//
// # What this package must NOT do
//
//   - Register in prometheus.DefaultRegisterer.
//   - Mutate engine state.
package prometheus
