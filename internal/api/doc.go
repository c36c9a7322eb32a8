// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to start an aggregation run, GET /v1/runs/{run_id} to poll it.
//   - GET /v1/records for the current snapshot, filtered by source, category,
//     degree and funding.
//   - GET /v1/events for recently published snapshot notifications.
package api
