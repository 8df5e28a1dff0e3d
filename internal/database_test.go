package internal

import (
	"path/filepath"
	"testing"

	"github.com/iksnae/copilot-session/testutil"
)

func TestOpenDatabase(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) string
		wantErr bool
	}{
		{
			name: "valid database",
			setup: func(t *testing.T) string {
				tmpDir := testutil.CreateTempDir(t)
				dbPath := filepath.Join(tmpDir, "state.db")
				testutil.CreateStateFixture(t, dbPath, map[string]string{"token": "abc"})
				return dbPath
			},
			wantErr: false,
		},
		{
			name: "non-existent database",
			setup: func(t *testing.T) string {
				tmpDir := testutil.CreateTempDir(t)
				return filepath.Join(tmpDir, "nonexistent.db")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbPath := tt.setup(t)
			db, err := OpenDatabase(dbPath)
			if (err != nil) != tt.wantErr {
				t.Errorf("OpenDatabase() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				defer db.Close()
				if err := db.Ping(); err != nil {
					t.Errorf("Database ping failed: %v", err)
				}
			}
		})
	}
}

func TestOpenStateDatabase_CreatesSchema(t *testing.T) {
	dbPath := filepath.Join(testutil.CreateTempDir(t), "state.db")

	db, err := OpenStateDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenStateDatabase() error = %v", err)
	}
	defer db.Close()

	if err := PutKV(db, "k", "v"); err != nil {
		t.Fatalf("PutKV() error = %v", err)
	}

	// Reopening keeps existing rows
	db.Close()
	db, err = OpenStateDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenStateDatabase() reopen error = %v", err)
	}
	value, ok, err := GetKV(db, "k")
	if err != nil || !ok || value != "v" {
		t.Errorf("GetKV() = (%q, %v, %v), want (v, true, nil)", value, ok, err)
	}
}

func TestKVOperations(t *testing.T) {
	db := testutil.CreateInMemoryDB(t)
	defer db.Close()

	if _, ok, err := GetKV(db, "missing"); err != nil || ok {
		t.Errorf("GetKV(missing) ok = %v, err = %v, want false, nil", ok, err)
	}

	if err := PutKV(db, "token", "first"); err != nil {
		t.Fatalf("PutKV() error = %v", err)
	}
	if err := PutKV(db, "token", "second"); err != nil {
		t.Fatalf("PutKV() overwrite error = %v", err)
	}
	if err := PutKV(db, "theme", "dark"); err != nil {
		t.Fatalf("PutKV() error = %v", err)
	}

	value, ok, err := GetKV(db, "token")
	if err != nil || !ok || value != "second" {
		t.Errorf("GetKV(token) = (%q, %v, %v), want (second, true, nil)", value, ok, err)
	}

	tests := []struct {
		name    string
		pattern string
		want    int
	}{
		{name: "all keys", pattern: "%", want: 2},
		{name: "prefix", pattern: "to%", want: 1},
		{name: "no match", pattern: "zzz%", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs, err := QueryKV(db, tt.pattern)
			if err != nil {
				t.Fatalf("QueryKV() error = %v", err)
			}
			if len(pairs) != tt.want {
				t.Errorf("QueryKV(%q) returned %d pairs, want %d", tt.pattern, len(pairs), tt.want)
			}
		})
	}

	if err := DeleteKV(db, "token"); err != nil {
		t.Fatalf("DeleteKV() error = %v", err)
	}
	if err := DeleteKV(db, "token"); err != nil {
		t.Errorf("DeleteKV() on absent key error = %v", err)
	}
	if _, ok, _ := GetKV(db, "token"); ok {
		t.Error("token should be gone after DeleteKV()")
	}
}
