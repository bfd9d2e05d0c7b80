// Package registry maps LWM2M object and resource identifiers between their
// numeric wire form and symbolic keys.
//
// Every other package addresses the resource tree through symbolic keys
// ("temperature", "sensorValue"). The wire protocol uses numbers
// ("3303", "5700"). A Resolver converts in both directions:
//
//	r := registry.Default()
//	r.ObjectKey("3303")                   // "temperature"
//	r.ResourceKey("temperature", "5700")  // "sensorValue"
//	r.ObjectID("temperature")             // "3303"
//
// Resolution is total. An identifier the registry does not know is echoed
// back unchanged, so custom objects remain addressable by number.
//
// Custom object definitions can be loaded from YAML:
//
//	objects:
//	  - id: 32769
//	    name: valve
//	    resources:
//	      1: position
//	      2: target
package registry
