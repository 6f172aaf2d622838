// Package api hosts the HTTP server, middleware, and REST handlers over the query service.
// Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /ram-options for the catalog with latest prices.
//   - GET /ram/{ram_id}/prices and /ram/{ram_id}/chart-data for history.
//   - POST /ram/{ram_id}/track to promote a product to a dedicated series.
package api
