package database

import (
	"context"
	"testing"
)

func TestMigrate_EmptyFS(t *testing.T) {
	db := openTestDB(t)

	// With no embedded migrations, Migrate should still create the
	// bookkeeping table and succeed.
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if err != nil {
		t.Fatalf("schema_migrations missing: %v", err)
	}
	if count != 0 {
		t.Errorf("applied migrations = %d, want 0", count)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 2; i++ {
		if err := db.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}
}
