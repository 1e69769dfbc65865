// Package server hosts the plugin HTTP API from a single HTTP server.
//
// The server builds a consistent middleware chain of auth, rate limiting,
// metrics, request identity, security headers, and logging so handlers all
// share common protections and instrumentation.
package server
