// Package observe provides observability primitives for cache operations.
//
// It wraps OpenTelemetry tracing and metrics around individual operations
// (get, set, delete, flush, ...) and offers a small structured Logger backed
// by zerolog. Nothing here changes cache behaviour; every primitive has a
// no-op form, and a cache built without an Observer uses those.
package observe
