// Package observe implements the LWM2M observation and reporting engine.
//
// An observation binds a path to an open notification stream. The engine
// decides when a value is pushed, using the reporting attributes of the
// path (see package attribute).
//
// # Periods
//
// Each observer runs two timers:
//   - minTimer (pmin): after a report the path is muted until it fires
//   - maxTimer (pmax): forces a report with the current value when no
//     report happened for pmax seconds
//
// A change that arrives while muted is not dropped. The latest value is
// kept and evaluated again after pmin. Fast changes chain this delay.
//
// # Change Filters
//
// Numeric values are gated by gt, lt and step. ShouldReport holds the exact
// rules. Resource, instance and object observers on overlapping paths are
// evaluated independently.
//
// # Concurrency
//
// Timer callbacks check that their observer is still current before they
// act, so cancel and re-observe never race with a pending timer.
package observe
