package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/photo-grouper/internal/database"
)

const personColumns = `id, name, cover_face_id, face_count, average_embedding, favorite, hidden, created_at, updated_at`

func scanPersonRow(scanner interface{ Scan(...any) error }) (database.Person, error) {
	var p database.Person
	var cover sql.NullInt64
	var avg []byte

	if err := scanner.Scan(
		&p.ID,
		&p.Name,
		&cover,
		&p.FaceCount,
		&avg,
		&p.Favorite,
		&p.Hidden,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return p, fmt.Errorf("scan person: %w", err)
	}

	p.CoverFaceID = cover.Int64
	if avg != nil {
		var v pgvector.Vector
		if err := v.Scan(avg); err != nil {
			return p, fmt.Errorf("parse average embedding of person %s: %w", p.ID, err)
		}
		p.AverageEmbedding = v.Slice()
	}
	return p, nil
}

// averageValue returns the pgvector parameter for an average embedding.
func averageValue(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func nullCover(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// GetPerson retrieves a person by ID.
func (r *repo) GetPerson(ctx context.Context, id string) (*database.Person, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+personColumns+` FROM persons WHERE id = $1`, id)
	p, err := scanPersonRow(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("person %s: %w", id, database.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// ListPersons returns all persons, largest first.
func (r *repo) ListPersons(ctx context.Context) ([]database.Person, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+personColumns+` FROM persons ORDER BY face_count DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	var persons []database.Person
	for rows.Next() {
		p, err := scanPersonRow(rows)
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return persons, nil
}

// CreatePerson inserts a person. CreatedAt and UpdatedAt are filled in.
func (r *repo) CreatePerson(ctx context.Context, p *database.Person) error {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO persons (id, name, cover_face_id, face_count, average_embedding, favorite, hidden)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`,
		p.ID,
		p.Name,
		nullCover(p.CoverFaceID),
		p.FaceCount,
		averageValue(p.AverageEmbedding),
		p.Favorite,
		p.Hidden,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert person %s: %w", p.ID, err)
	}
	return nil
}

// UpdatePerson overwrites the mutable fields of a person.
func (r *repo) UpdatePerson(ctx context.Context, p *database.Person) error {
	err := r.q.QueryRowContext(ctx, `
		UPDATE persons SET
			name = $2,
			cover_face_id = $3,
			face_count = $4,
			average_embedding = $5,
			favorite = $6,
			hidden = $7,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`,
		p.ID,
		p.Name,
		nullCover(p.CoverFaceID),
		p.FaceCount,
		averageValue(p.AverageEmbedding),
		p.Favorite,
		p.Hidden,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("person %s: %w", p.ID, database.ErrNotFound)
		}
		return fmt.Errorf("update person %s: %w", p.ID, err)
	}
	return nil
}

// DeletePerson removes a person if it exists. Member faces become unassigned.
func (r *repo) DeletePerson(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, "DELETE FROM persons WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete person %s: %w", id, err)
	}
	return nil
}
