package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

const createKVTableSQL = `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT
	)`

// CreateInMemoryDB creates an in-memory SQLite state database for testing
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createKVTableSQL); err != nil {
		db.Close()
		t.Fatalf("Failed to create kv table: %v", err)
	}

	return db
}

// CreateTestDB creates an in-memory state database holding the given rows
func CreateTestDB(t *testing.T, rows map[string]string) *sql.DB {
	t.Helper()
	db := CreateInMemoryDB(t)

	stmt, err := db.Prepare("INSERT INTO kv (key, value) VALUES (?, ?)")
	if err != nil {
		db.Close()
		t.Fatalf("Failed to prepare insert statement: %v", err)
	}
	defer stmt.Close()

	for key, value := range rows {
		if _, err := stmt.Exec(key, value); err != nil {
			db.Close()
			t.Fatalf("Failed to insert %s: %v", key, err)
		}
	}

	return db
}

// InsertKV inserts a row into the state database
func InsertKV(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()
	if _, err := db.Exec("INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)", key, value); err != nil {
		t.Fatalf("Failed to insert %s: %v", key, err)
	}
}
