// Package api hosts the optional status server that runs beside a crawl.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the live run summary and checkpoint counts.
//   - GET /v1/failures for the items that failed so far.
package api
