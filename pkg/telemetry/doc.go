// Package telemetry provides the observability stack for fleetwright:
// structured logging via zerolog, Prometheus metrics for actor runs and
// remote platform calls, and OpenTelemetry tracing spans per run and step.
//
// Dry runs flow through the same logging and tracing paths as real runs
// with a dry_run field attached, so a dry narrative matches the real one
// in shape.
package telemetry
