package kv

import (
	"context"

	"github.com/lucasnoah/ideaforge/internal/db"
)

// SQLiteStore stores values in the kv table of the forge SQLite database.
type SQLiteStore struct {
	db *db.DB
}

// OpenSQLiteStore opens (or creates) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	d, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: d}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, found, err := s.db.KVGet(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	return s.db.KVSet(key, value)
}

func (s *SQLiteStore) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	return s.db.KVSetNX(key, value)
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	return s.db.KVDelete(key)
}

func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.db.KVList(prefix)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
