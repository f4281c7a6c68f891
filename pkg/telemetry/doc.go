// Package telemetry provides structured logging (zerolog), Prometheus
// metrics, OpenTelemetry tracing, and pipeline progress events for rigup.
package telemetry
