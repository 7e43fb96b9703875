package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestSQLite opens a migrated history database in t.TempDir() and
// registers cleanup.
func OpenTestSQLite(t *testing.T) (writeDB, readDB *sql.DB) {
	t.Helper()

	writeDB, readDB, err := OpenHistory(context.Background(), filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})
	return writeDB, readDB
}
