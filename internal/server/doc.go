// Package server implements the HTTP surface of the relay using Echo.
//
// Routes: token issuance and lookup (/api/tokens), the authenticated
// WebSocket endpoint (WS_PATH), health probes, /version and /metrics.
// Handlers are split by concern: handlers_tokens.go, handlers_websocket.go,
// handlers_health.go.
package server
