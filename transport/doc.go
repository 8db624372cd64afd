// Package transport provides the http.RoundTripper every storefront request
// goes through.
//
// The [Interceptor] decides per request whether the endpoint is public or
// protected, attaches or strips credentials accordingly, and turns a 401 on a
// protected endpoint into at most one refresh followed by one replay. The
// [Breaker] sits underneath and stops hammering a backend that keeps failing.
package transport
