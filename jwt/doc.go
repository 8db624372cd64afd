// Package jwt decodes storefront access tokens on the client side and mints
// tokens for the in-process fake backend.
//
// # Decoding
//
// [Decoder] reads the payload without verifying the signature. The client has
// no key material; decoded claims are used for display and gating only, never
// as proof of authentication.
//
// # What this package must NOT do
//
//   - Access storage or the network.
//   - Treat a decodable token as a verified session.
package jwt
