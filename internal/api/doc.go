// Package api serves the stored dataset over HTTP. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /api/v1/auth/token to exchange a username and password for a bearer token.
//   - GET /api/v1/units, /api/v1/units/{id} and /api/v1/units/{id}/{section}
//     for per-unit reads.
//   - GET /api/v1/sections/{section} for one section across every unit.
//
// Every /api/v1 read route requires a bearer token. The token route can be
// throttled per client IP with WithTokenLimiter.
package api
