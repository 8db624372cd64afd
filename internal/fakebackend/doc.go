// Package fakebackend is an in-memory storefront auth API used by tests, the
// mock-backend example and the CLI's --demo mode. It issues real signed
// tokens, so clients exercise the same decoding and refresh paths they use
// against production.
package fakebackend
