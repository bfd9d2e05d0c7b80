// Package coap binds the transport interfaces to CoAP over UDP using
// plgd-dev/go-coap.
//
// A Transport is both ends of an LWM2M client's CoAP endpoint. Requests to
// the management server go over a dialed connection per server address;
// that connection also carries the server's requests back to the node,
// which is how an LWM2M server reaches a client behind NAT. Listen opens
// an additional UDP socket for peers that contact the node directly.
//
// Inbound requests are converted to wire.Request and handed to the
// transport.Handler. The CoAP handler waits for the handler's response up
// to Config.ResponseTimeout and answers 5.03 if none arrives. Observe
// notifications are written on the originating connection with the
// request's token and an increasing Observe sequence.
package coap
