// Package client implements the LWM2M client node.
//
// A Node owns the resource tree, the attribute store and the observation
// engine, and connects them to a transport. It registers with a server,
// keeps the registration alive with lifetime updates and serves the
// server's requests through the interaction dispatcher.
//
// Registration states:
//
//	UNREGISTERED -> REGISTERING -> REGISTERED <-> UPDATING
//	REGISTERED   -> UNREGISTERED (deregister, 4.04 on refresh, heartbeat lost)
//
// Usage:
//
//	cfg := client.DefaultConfig()
//	cfg.Name = "node-1"
//	node, err := client.NewNode(cfg, coap.New(coap.Config{Endpoint: "node-1"}))
//	if err != nil {
//		return err
//	}
//	defer node.Close()
//
//	node.Tree().InitResource("device", 0, map[string]any{"manuf": "acme"})
//	node.OnEvent(func(e client.Event) { fmt.Println(e.Type) })
//
//	code, err := node.Register(ctx, "lwm2m.example.com", 5683)
//
// Events are delivered asynchronously, each handler call in its own
// goroutine.
package client
