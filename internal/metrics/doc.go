// Package metrics exposes Prometheus instrumentation for the daemon and the
// session.
//
// Collectors are package level and registered with the default registry
// through promauto, labeled by role ("daemon" or "session") so both processes
// can share the same metric names. ObserveCycle and ObserveSample translate
// arbitration results and sensor readings into gauge and counter updates;
// callers never touch the collectors directly.
//
// Server serves /metrics and /healthz on a chi router when a listen address
// is configured. The endpoint is optional and a bind failure is logged
// rather than fatal.
package metrics
