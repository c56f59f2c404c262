// Package api provides the HTTP control surface for the operations console.
//
// The server exposes a versioned REST API under /api/v1 plus a WebSocket
// endpoint for live command and zone state events. Authentication is a
// single operator credential exchanged for a short-lived JWT; WebSocket
// connections authenticate with single-use tickets so the token never
// appears in a URL.
//
// Route groups:
//   - /health, /auth/login, /metrics: public
//   - /devices, /zones, /switch, /audit, /auth/ws-ticket, /ws: JWT required
package api
