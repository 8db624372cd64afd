// Package prometheus exposes authclient metrics as a prometheus.Collector.
//
// Counter names are authclient_*_total; the single histogram is
// authclient_auth_latency_seconds, present only when latency histograms are
// enabled.
//
// # What this package must NOT do
//
//   - Register in the default Prometheus registry. Callers register the
//     exporter or mount Handler.
//   - Mutate client state.
package prometheus
