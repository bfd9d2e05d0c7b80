// Package connection keeps a client registered with its management server.
//
// A Manager wraps a connect function (for an LWM2M client: a registration)
// and runs it again whenever the link is reported lost. Retries are spaced
// by a Backoff.
//
// # Retry Strategy
//
// The default Backoff is fixed: every attempt waits ReconnectDelay (5s)
// and there is no jitter. This matches the auto-reconnect behavior of the
// node, which retries the registration until the server accepts it.
//
// An exponential Backoff is available for deployments with many nodes
// (client.Config.ReconnectMultiplier, ReconnectMaxDelay, ReconnectJitter):
//
//	b := connection.NewBackoffWithConfig(connection.BackoffConfig{
//		Initial:    time.Second,
//		Max:        time.Minute,
//		Multiplier: 2,
//		Jitter:     0.25,
//	})
//
//	actual_delay = base_delay + random(0, base_delay * jitter)
//
// A successful attempt resets the backoff.
package connection
