// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/tracks/{track_id}/groups for roll-up snapshots.
//   - POST /v1/tracks/{track_id}/groups/publish to trigger a publish attempt.
//   - GET /v1/tracks/{track_id}/attempts and POST .../attempts/{id}/resolve
//     for publish attempt bookkeeping via the AttemptRepository interface.
package api
