package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/photo-grouper/internal/database"
)

// GetPhoto retrieves a photo by UID, nil if it is not in the catalog.
func (r *repo) GetPhoto(ctx context.Context, uid string) (*database.Photo, error) {
	var p database.Photo
	var takenAt sql.NullTime
	err := r.q.QueryRowContext(ctx,
		"SELECT uid, file_name, width, height, taken_at FROM photos WHERE uid = $1", uid,
	).Scan(&p.UID, &p.FileName, &p.Width, &p.Height, &takenAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get photo %s: %w", uid, err)
	}
	p.TakenAt = takenAt.Time
	return &p, nil
}

// UnanalyzedPhotoUIDs returns up to limit UIDs of photos without an analysis.
// A limit of zero or less returns all of them.
func (r *repo) UnanalyzedPhotoUIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT p.uid
		FROM photos p
		LEFT JOIN photo_analyses a ON a.photo_uid = p.uid
		WHERE a.photo_uid IS NULL
		ORDER BY p.uid
		LIMIT $1
	`, sql.NullInt64{Int64: int64(limit), Valid: limit > 0})
	if err != nil {
		return nil, fmt.Errorf("query unanalyzed photos: %w", err)
	}
	defer rows.Close()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan photo uid: %w", err)
		}
		uids = append(uids, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unanalyzed photos: %w", err)
	}
	return uids, nil
}

// CountUnanalyzed returns the number of photos without an analysis.
func (r *repo) CountUnanalyzed(ctx context.Context) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM photos p
		LEFT JOIN photo_analyses a ON a.photo_uid = p.uid
		WHERE a.photo_uid IS NULL
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unanalyzed photos: %w", err)
	}
	return count, nil
}

// CountPhotos returns the number of photos in the catalog.
func (r *repo) CountPhotos(ctx context.Context) (int, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM photos").Scan(&count); err != nil {
		return 0, fmt.Errorf("count photos: %w", err)
	}
	return count, nil
}

// UpsertPhotos inserts new photos and refreshes metadata of known ones.
func (r *repo) UpsertPhotos(ctx context.Context, photos []database.Photo) error {
	for _, p := range photos {
		takenAt := sql.NullTime{Time: p.TakenAt, Valid: !p.TakenAt.IsZero()}
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO photos (uid, file_name, width, height, taken_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (uid) DO UPDATE SET
				file_name = EXCLUDED.file_name,
				width = EXCLUDED.width,
				height = EXCLUDED.height,
				taken_at = EXCLUDED.taken_at,
				updated_at = NOW()
		`, p.UID, p.FileName, p.Width, p.Height, takenAt)
		if err != nil {
			return fmt.Errorf("upsert photo %s: %w", p.UID, err)
		}
	}
	return nil
}

// DeletePhoto removes a photo; its analysis and faces go with it through the
// foreign keys. The removed faces are returned.
func (r *repo) DeletePhoto(ctx context.Context, uid string) ([]database.Face, error) {
	faces, err := r.GetFaces(ctx, uid)
	if err != nil {
		return nil, err
	}
	if _, err := r.q.ExecContext(ctx, "DELETE FROM photos WHERE uid = $1", uid); err != nil {
		return nil, fmt.Errorf("delete photo %s: %w", uid, err)
	}
	return faces, nil
}
