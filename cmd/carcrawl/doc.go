// Package main hosts the carcrawl entrypoint.
//
// Architecture overview:
//   - Discovery: internal/orchestrator walks root, category, subcategory, and listing pages level by level through
//     internal/discovery, deduplicating URLs and pruning categories outside the requested scope.
//   - Fetch pipeline: every request goes through internal/fetcher, which paces requests with a single token bucket,
//     retries timeouts and 5xx responses with exponential backoff, and never retries 4xx responses.
//   - Records: model pages are parsed by internal/extract/htmlextract, merged with the stored record by
//     internal/merge, validated by internal/validate, and written to the local record tree or GCS. A Pub/Sub
//     notification is published per persisted record when a topic is configured.
//   - Checkpoints: each completed item and its children are recorded in a file, SQLite, or Postgres backend so
//     `crawl --resume` replays finished navigation without fetching it again.
//   - Observability: zap logs carry url, kind, and state on every item; progress events flow to log and Prometheus
//     sinks; an optional status server exposes /healthz, /metrics, /v1/status, and /v1/failures.
//
// Operational notes:
//   - SIGINT or SIGTERM stops the crawl after the item in flight and exits 130. Rerun with --resume to continue.
//   - The process exits 1 when any item failed or crawl.max_duration elapsed.
package main
