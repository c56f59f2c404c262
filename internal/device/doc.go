// Package device persists and caches the AV hardware inventory: matrix
// switchers and zone processors with their network endpoints and active
// channel lists.
//
// Devices are seeded from configuration at startup and kept in SQLite so
// the operator console survives restarts with the same inventory. The
// Registry layers an in-memory cache over the repository for the hot read
// path (every command send resolves a device).
package device
