// Package audit relays session lifecycle events (login, verification,
// refresh, logout, synchronization) to a caller-supplied sink without
// blocking the session state machine.
//
// This package decides nothing about which events exist; the root package
// emits them. It must not import authclient.
package audit
