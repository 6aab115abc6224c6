// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/sessions to submit an audit job.
//   - GET /v1/sessions and /v1/sessions/{session_id}[/progress|/results] for
//     dashboards and pollers.
//   - POST /v1/sessions/{session_id}/stop and DELETE /v1/sessions/{session_id}
//     for lifecycle control.
package api
