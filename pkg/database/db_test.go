package database

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenCreatesFileAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := Open(Config{Path: path, Create: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	schema := `CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT);`
	for i := 0; i < 2; i++ {
		if err := Migrate(context.Background(), db, schema); err != nil {
			t.Fatalf("migrate #%d: %v", i, err)
		}
	}

	var mode string
	if err := db.QueryRow(`PRAGMA journal_mode;`).Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
}

func TestOpenMissingFileWithoutCreate(t *testing.T) {
	_, err := Open(Config{Path: filepath.Join(t.TempDir(), "missing.db")})
	if err == nil {
		t.Fatal("expected error for missing database")
	}
}
