// Package database provides SQLite connectivity for AV Ops Core.
//
// It wraps database/sql with WAL-mode configuration, embedded schema
// migrations, and health checks. The service stores device configuration,
// audio zone state, and the command audit trail here.
//
// SQLite is opened with a single connection because the engine supports
// one writer; the busy timeout absorbs short lock contention.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/avops.db", WALMode: true})
//	if err != nil { ... }
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil { ... }
package database
