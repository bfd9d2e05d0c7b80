// Package attribute stores the reporting attributes that gate observe
// notifications.
//
// Attributes are kept per canonical path key ("temperature",
// "temperature/0", "temperature/0/sensorValue"). Records are created
// lazily. A record keeps its configured thresholds after an observation is
// cancelled, so a later re-observe reuses them.
//
// pmin and pmax inherit from the nearest ancestor record that sets them:
//
//	resource -> instance -> object -> store default
//
// gt, lt and step never inherit.
package attribute
