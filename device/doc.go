// Package device supplies the stable identifier this installation presents to
// the storefront backend in the X-Device-ID header and the login request.
//
// Resolution order in [Provider.GetOrCreate]: the 24h cache entry, then the
// durable entry, then a host fingerprint, then a random fallback. Once an
// identifier exists it is reused until [Provider.Clear].
package device
