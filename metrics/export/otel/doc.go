// Package otel publishes credgate engine metrics as OpenTelemetry
// observable instruments. A single registered callback reads the engine
// snapshot on each collection; the caller owns the MeterProvider.
package otel
