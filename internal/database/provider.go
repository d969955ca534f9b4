package database

import (
	"context"
	"errors"
)

var (
	postgresStore       func() Store
	postgresInitialized bool
	faceIndex           *HNSWIndex
)

// RegisterPostgresBackend registers the PostgreSQL store constructor.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(store func() Store) {
	postgresStore = store
	postgresInitialized = true
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// GetStore returns the Store of the PostgreSQL backend
func GetStore(ctx context.Context) (Store, error) {
	if !postgresInitialized {
		return nil, errors.New("PostgreSQL backend not initialized: DATABASE_URL is required")
	}
	if postgresStore == nil {
		return nil, errors.New("PostgreSQL store not registered")
	}
	return postgresStore(), nil
}

// RegisterFaceIndex registers the shared face HNSW index.
func RegisterFaceIndex(index *HNSWIndex) {
	faceIndex = index
}

// GetFaceIndex returns the registered face HNSW index, or nil if not registered.
func GetFaceIndex() *HNSWIndex {
	return faceIndex
}
