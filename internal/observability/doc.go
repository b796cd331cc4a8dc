// Package observability carries request-scoped logging helpers shared by the
// HTTP layer.
package observability
