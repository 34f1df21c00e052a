// Package observe provides observability primitives for cache operations.
//
// It is a pure instrumentation library: structured logging, OpenTelemetry
// tracing and metrics, and an instrumentor wrapping cache operations with
// all three. Components receive a Logger explicitly; there are no
// module-level logger singletons.
package observe
