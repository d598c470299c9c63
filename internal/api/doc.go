// Package api serves the run status endpoints for unattended crawls:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the current run snapshot (state, counters, errors).
package api
