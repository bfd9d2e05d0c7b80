// Package model implements the LWM2M resource tree of a client node.
//
// # Hierarchy
//
// LWM2M addresses device data in three levels:
//
//	Object > Instance > Resource
//
// An Object is a type (Device, Temperature, ...). Each object holds numbered
// instances, and each instance holds resources:
//
//	temperature (3303)
//	├── 0
//	│   ├── sensorValue (5700) = 21
//	│   └── units (5701) = "C"
//	└── 1
//	    └── ...
//
// # Addressing
//
// A Path names one of the three levels. Identifiers are normalized to
// symbolic keys through a Resolver, so "/3303/0/5700" and
// "temperature/0/sensorValue" address the same resource.
//
// # Entries
//
// A resource entry is either a plain value (number, string, bool, bytes or
// a nested map for composite resources) or an *Active record with optional
// Read, Write and Exec handlers. The handlers present decide which
// operations are allowed:
//
//	tree.InitResource("3303", 0, map[string]any{
//		"5700": &model.Active{Read: readSensor},
//		"5701": "C",
//		"5605": &model.Active{Exec: resetMinMax},
//	})
//
// # Errors
//
// Operations fail with the sentinels ErrNotFound, ErrUnreadable,
// ErrUnwritable, ErrUnexecutable, ErrTypeMismatch, ErrBadRequest and
// ErrNotAllowed. Handler errors and panics surface as ErrBadRequest.
package model
