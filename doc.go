// Package authclient is the client side of a storefront's authentication:
// login with an emailed one-time code or an authenticator code, a session
// persisted in a token store, and an HTTP client that attaches credentials
// and refreshes them once on 401.
//
// Client methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Session lifecycle
//
// A Client is in one of three states. Anonymous has no session. Login moves
// it to Pending when the backend wants a verification code, and VerifyOTP or
// VerifyMFA complete it into Authenticated. A login from a trusted device
// passes through Pending and reaches Authenticated in one call. Logout and a
// failed refresh return to Anonymous.
//
// Login never stores tokens. Tokens are persisted only once verification
// succeeds, so a client restarted while Pending comes back Anonymous.
//
// # Shared storage
//
// Clients built on the same storage namespace (a shared MemoryBackend, a
// Redis prefix or a token file) observe each other: after [Client.Start],
// a login or logout in one is reflected in the others.
//
// # What this package must NOT do
//
//   - Verify token signatures. Tokens are decoded for their claims only; the
//     backend remains the authority.
//   - Retry a verification code automatically.
//   - Reach Authenticated on any error path.
package authclient
