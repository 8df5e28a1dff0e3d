package internal

import (
	"database/sql"
)

// TokenKey is the fixed slot holding the persisted bearer token
const TokenKey = "token"

// Storage persists client-side state in the kv table
type Storage struct {
	db   *sql.DB
	path string
}

// NewStorage creates a new Storage instance
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db, path: "state"}
}

// NewStorageAt creates a Storage whose errors report path
func NewStorageAt(db *sql.DB, path string) *Storage {
	return &Storage{db: db, path: path}
}

// LoadToken returns the persisted token, or "" when logged out
func (s *Storage) LoadToken() (string, error) {
	token, _, err := GetKV(s.db, TokenKey)
	if err != nil {
		return "", &StorageError{Path: s.path, Op: "read", Err: err}
	}
	return token, nil
}

// SaveToken persists the token, replacing any previous one
func (s *Storage) SaveToken(token string) error {
	if err := PutKV(s.db, TokenKey, token); err != nil {
		return &StorageError{Path: s.path, Op: "write", Err: err}
	}
	return nil
}

// RemoveToken deletes the persisted token. Safe to call when none is stored.
func (s *Storage) RemoveToken() error {
	if err := DeleteKV(s.db, TokenKey); err != nil {
		return &StorageError{Path: s.path, Op: "delete", Err: err}
	}
	return nil
}

// Entries lists every stored key/value pair
func (s *Storage) Entries() ([]KeyValuePair, error) {
	pairs, err := QueryKV(s.db, "%")
	if err != nil {
		return nil, &StorageError{Path: s.path, Op: "read", Err: err}
	}
	return pairs, nil
}
