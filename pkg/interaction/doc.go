// Package interaction serves inbound LWM2M requests against a client
// node's resource tree.
//
// Requests are classified into operations:
//
//   - Read: GET a resource, instance or object
//   - Discover: GET with Accept link-format, lists paths and attributes
//   - Write: PUT with a payload
//   - Write-Attributes: PUT without payload, attributes in the query
//   - Execute: POST to a resource, arguments separated by commas
//   - Create and Delete: POST to an object, DELETE an instance
//   - Observe and Cancel-Observe: GET with Observe 0 or 1
//
// # Usage
//
//	d := interaction.NewDispatcher(tree, attrs, engine, codec.New(resolver), interaction.Config{
//	    Logger: logger,
//	    OnAnnounce: func(payload []byte) { ... },
//	})
//	listener.Listen(ctx, ":5683", d.Serve)
//
// Serve never blocks. Each peer gets a serial queue so requests from one
// peer are handled in arrival order.
package interaction
