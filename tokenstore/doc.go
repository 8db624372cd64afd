// Package tokenstore persists the client's session credentials (access token,
// refresh token, authenticated email) and the device identity entries across
// process restarts.
//
// # Backends
//
//   - [RedisBackend]: shared across processes; mutations are announced on a
//     pub/sub channel so every process sharing the namespace observes them.
//   - [FileBackend]: a single JSON document on disk, optionally age-encrypted.
//   - [MemoryBackend]: volatile, for tests and short-lived tools.
//
// # Write ownership
//
// The store is last-writer-wins. Each caller writes only its own slice: the
// session orchestrator writes full sessions and clears them, the transport
// interceptor writes only the access token after a refresh (and clears on
// refresh failure), the synchronizer only reads.
package tokenstore
