// Package telemetry groups the observability packages used by meridian.
//
//   - logging: slog construction, derivation context fields and PII redaction
//   - metrics: Prometheus collectors for derivation runs, caches and catalog reloads
//   - health: liveness and readiness endpoints for meridian watch
package telemetry
