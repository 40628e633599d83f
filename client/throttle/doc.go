// Package throttle rate-limits the start of new requests and the
// reconnect attempts of long-lived tasks using a token-bucket algorithm
// from [golang.org/x/time/rate].
//
// # Usage
//
// Gate request starts with a [Limiter]:
//
//	lim, err := throttle.New(
//		10, // requests per second
//		5,  // burst capacity
//		slog.Default(),
//		nil,
//	)
//	if lim.Allow() {
//		// start the request
//	}
//
// Allow never blocks, so it fits a poll loop; Wait blocks until a token
// is available or the context is cancelled.
//
// # Backoff
//
// A [Backoff] admits at most one attempt per interval. It suppresses
// redundant reconnects of authentication and stream tasks.
package throttle
