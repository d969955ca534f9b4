package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-grouper/internal/database"
	"github.com/kozaktomas/photo-grouper/internal/logger"
	"github.com/kozaktomas/photo-grouper/internal/vector"
)

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dimensions are the expected embedding lengths. Stored embeddings of any
// other length are read back as absent. Zero disables the check.
type Dimensions struct {
	Face  int
	Image int
}

// repo implements database.Tx on top of a querier.
type repo struct {
	q    querier
	dims Dimensions
}

var _ database.Tx = (*repo)(nil)

// Store is the PostgreSQL database.Store. Direct calls use the pool; the
// multi-statement writes open their own transaction.
type Store struct {
	repo
	pool *Pool
}

var _ database.Store = (*Store)(nil)

// NewStore creates a store on pool.
func NewStore(pool *Pool, dims Dimensions) *Store {
	return &Store{repo: repo{q: pool.db, dims: dims}, pool: pool}
}

// WithTx runs fn in a read-write transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx database.Tx) error) error {
	tx, err := s.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&repo{q: tx, dims: s.dims}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// WithReadTx runs fn in a read-only repeatable-read transaction so every
// query inside sees the same snapshot.
func (s *Store) WithReadTx(ctx context.Context, fn func(tx database.Reader) error) error {
	tx, err := s.pool.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&repo{q: tx, dims: s.dims}); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveFaces runs in its own transaction when called outside WithTx.
func (s *Store) SaveFaces(ctx context.Context, photoUID string, faces []database.Face) ([]database.Face, error) {
	var saved []database.Face
	err := s.WithTx(ctx, func(tx database.Tx) error {
		var err error
		saved, err = tx.SaveFaces(ctx, photoUID, faces)
		return err
	})
	return saved, err
}

// DeletePhoto runs in its own transaction when called outside WithTx.
func (s *Store) DeletePhoto(ctx context.Context, uid string) ([]database.Face, error) {
	var deleted []database.Face
	err := s.WithTx(ctx, func(tx database.Tx) error {
		var err error
		deleted, err = tx.DeletePhoto(ctx, uid)
		return err
	})
	return deleted, err
}

// decodeEmbedding decodes a BYTEA embedding of dim components. Corrupt bytes
// and wrong lengths are logged and treated as a missing embedding so the row
// stays usable.
func decodeEmbedding(kind, key string, b []byte, dim int) []float32 {
	if len(b) == 0 {
		return nil
	}
	v, err := vector.DecodeDim(b, dim)
	if err != nil {
		logger.Warn("ignoring malformed embedding", "kind", kind, "key", key, "bytes", len(b), "error", err)
		return nil
	}
	return v
}

// encodeEmbedding returns nil (SQL NULL) for an empty embedding.
func encodeEmbedding(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return vector.Encode(v)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, database.ErrNotFound)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
