// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/sync/sweep and /v1/sync/search to trigger reconciliation runs.
//   - GET /v1/sync/status for the state of the latest runs.
package api
