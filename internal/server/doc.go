// Package server hosts the two Echo servers: the admin server (health, metrics, event queue API)
// and the overlay server, which guards the overlay websocket endpoint with connection limits.
//
// Handlers are split by concern: handlers_health.go, handlers_events.go, overlay.go.
package server
