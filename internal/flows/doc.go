// Package flows contains the pure decision functions behind Client
// operations.
//
// Each flow accepts the backend's answer (or a typed dependency struct) and
// returns a result the root package turns into a state transition. Flows
// hold no state between calls and never touch storage directly.
//
// # What this package must NOT do
//
//   - Import authclient (to avoid import cycles).
//   - Decide state transitions; it classifies, the root applies.
package flows
