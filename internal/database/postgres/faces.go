package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/lib/pq"

	"github.com/kozaktomas/photo-grouper/internal/database"
)

const faceColumns = `id, photo_uid, face_index, bbox, embedding, person_id, confidence, manually_verified, created_at`

func scanFaceRow(scanner interface{ Scan(...any) error }, dim int) (database.Face, error) {
	var face database.Face
	var bbox pq.Float64Array
	var emb []byte
	var personID sql.NullString

	if err := scanner.Scan(
		&face.ID,
		&face.PhotoUID,
		&face.FaceIndex,
		&bbox,
		&emb,
		&personID,
		&face.Confidence,
		&face.ManuallyVerified,
		&face.CreatedAt,
	); err != nil {
		return face, fmt.Errorf("scan face: %w", err)
	}

	copy(face.BBox[:], bbox)
	face.Embedding = decodeEmbedding("face", strconv.FormatInt(face.ID, 10), emb, dim)
	face.PersonID = personID.String
	return face, nil
}

func scanFaces(rows *sql.Rows, dim int) ([]database.Face, error) {
	var faces []database.Face
	for rows.Next() {
		face, err := scanFaceRow(rows, dim)
		if err != nil {
			return nil, err
		}
		faces = append(faces, face)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

func (r *repo) queryFaces(ctx context.Context, query string, args ...any) ([]database.Face, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows, r.dims.Face)
}

// GetFace retrieves a face by ID.
func (r *repo) GetFace(ctx context.Context, id int64) (*database.Face, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+faceColumns+` FROM faces WHERE id = $1`, id)
	face, err := scanFaceRow(row, r.dims.Face)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("face %d: %w", id, database.ErrNotFound)
		}
		return nil, err
	}
	return &face, nil
}

// GetFaces retrieves all faces of a photo.
func (r *repo) GetFaces(ctx context.Context, photoUID string) ([]database.Face, error) {
	return r.queryFaces(ctx, `SELECT `+faceColumns+` FROM faces WHERE photo_uid = $1 ORDER BY face_index`, photoUID)
}

// GetFacesByPerson retrieves all faces assigned to a person.
func (r *repo) GetFacesByPerson(ctx context.Context, personID string) ([]database.Face, error) {
	return r.queryFaces(ctx, `SELECT `+faceColumns+` FROM faces WHERE person_id = $1 ORDER BY id`, personID)
}

// GetFacesWithEmbedding retrieves every face carrying an embedding.
func (r *repo) GetFacesWithEmbedding(ctx context.Context) ([]database.Face, error) {
	faces, err := r.queryFaces(ctx, `SELECT `+faceColumns+` FROM faces WHERE embedding IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	// Malformed rows decode to nil and are left out.
	out := faces[:0]
	for _, f := range faces {
		if f.Embedding != nil {
			out = append(out, f)
		}
	}
	return out, nil
}

// CountFaces returns the total number of faces stored.
func (r *repo) CountFaces(ctx context.Context) (int, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM faces").Scan(&count); err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

// SaveFaces replaces the faces of a photo and returns them with IDs.
func (r *repo) SaveFaces(ctx context.Context, photoUID string, faces []database.Face) ([]database.Face, error) {
	if _, err := r.q.ExecContext(ctx, "DELETE FROM faces WHERE photo_uid = $1", photoUID); err != nil {
		return nil, fmt.Errorf("delete existing faces: %w", err)
	}

	saved := make([]database.Face, 0, len(faces))
	for _, f := range faces {
		f.PhotoUID = photoUID
		err := r.q.QueryRowContext(ctx, `
			INSERT INTO faces (photo_uid, face_index, bbox, embedding, person_id, confidence, manually_verified)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at
		`,
			photoUID,
			f.FaceIndex,
			pq.Float64Array(f.BBox[:]),
			encodeEmbedding(f.Embedding),
			nullString(f.PersonID),
			f.Confidence,
			f.ManuallyVerified,
		).Scan(&f.ID, &f.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert face %d of %s: %w", f.FaceIndex, photoUID, err)
		}
		saved = append(saved, f)
	}
	return saved, nil
}

// SetFacePerson sets or clears the person of a face.
func (r *repo) SetFacePerson(ctx context.Context, faceID int64, personID string, verified bool) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE faces SET person_id = $2, manually_verified = $3 WHERE id = $1",
		faceID, nullString(personID), verified)
	if err != nil {
		return fmt.Errorf("set person of face %d: %w", faceID, err)
	}
	return expectOneRow(res, fmt.Sprintf("face %d", faceID))
}
