// Package internal contains helper utilities that are intentionally private to
// authclient: fallback device identifiers, correlation IDs and device
// fingerprint hashing.
//
// # Sub-packages
//
//   - api: typed REST client for the storefront auth endpoints
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - fakebackend: in-memory storefront auth API used by tests and examples
//   - flows: pure-function outcome normalization and hydration
//   - logger: slog construction and context enrichment
//   - tracing: OpenTelemetry provider setup
//
// # What this package must NOT do
//
//   - Export types that appear in the public authclient API.
//   - Be imported by any package outside the authclient module.
package internal
