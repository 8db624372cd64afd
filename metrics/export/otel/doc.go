// Package otel registers authclient counters and the auth latency
// histogram as OpenTelemetry observable instruments.
//
// [NewOTelExporter] creates one Int64ObservableCounter per counter and one
// Int64ObservableGauge per cumulative latency bucket. A single callback reads
// [authclient.Client.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate client state.
package otel
