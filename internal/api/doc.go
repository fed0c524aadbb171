// Package api hosts the HTTP server, middleware, and handlers that trigger the
// harvester from push deliveries. Notable routes:
//   - GET /healthz / readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/pubsub/crawl for Pub/Sub push deliveries of crawl requests.
//   - POST /v1/events/storage for object finalize notifications.
//   - POST /v1/catalog/sync to refresh every channel's catalog.
//   - GET /v1/runs for the run ledger, when one is configured.
package api
