// Package api hosts the HTTP handlers the transcoding host calls into.
//
// The handlers coordinate request validation and response shaping while
// delegating resolution to the plugin.Manager injected at construction time;
// the package does not reach for globals and expects callers to supply fully
// configured dependencies.
//
// Handler implementations assume upstream middleware from internal/server has
// already enforced authentication, rate limiting, metrics, and logging
// concerns. New routes should preserve that contract by avoiding duplicate
// validation and by leaning on the middleware guarantees established in the
// server stack.
package api
