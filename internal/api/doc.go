// Package api serves the read-only HTTP status surface: the active alert
// set, engine stats, a health probe, and the Prometheus metrics endpoint.
// It never mutates engine state.
package api
