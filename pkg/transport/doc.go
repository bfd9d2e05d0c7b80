// Package transport defines the boundary between an LWM2M client node and
// the network.
//
// The node sends requests to its management server through a Client and
// serves inbound requests it receives through a Listener. Both carry
// protocol-neutral wire.Request and wire.Response values; the CoAP
// binding lives in the coap subpackage.
//
// # Observe Streams
//
// A ResponseWriter answers one request. After Respond it stays usable for
// observe notifications: each Write pushes one more payload with the same
// token and content format, and Close ends the stream. Done is closed when
// the stream ends on either side.
//
// # Liveness
//
// Heartbeat writes a keep-alive payload on an open stream at a fixed
// interval and reports when writes keep failing. PeerTracker records the
// last activity of each peer so idle secondary connections can be closed.
package transport
