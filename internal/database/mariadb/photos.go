package mariadb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/photo-grouper/internal/database"
)

// catalogQuery selects the primary file of every live PhotoPrism photo.
// file_name is relative to the originals directory.
const catalogQuery = `
	SELECT p.photo_uid, f.file_name, f.file_width, f.file_height, p.taken_at
	FROM photos p
	JOIN files f ON f.photo_id = p.id AND f.file_primary = 1 AND f.file_missing = 0
	WHERE p.deleted_at IS NULL AND p.updated_at >= ?
	ORDER BY p.photo_uid
`

// Photos returns catalog photos updated at or after since.
// A zero since returns the whole catalog.
func (p *Pool) Photos(ctx context.Context, since time.Time) ([]database.Photo, error) {
	rows, err := p.db.QueryContext(ctx, catalogQuery, since)
	if err != nil {
		return nil, fmt.Errorf("query catalog photos: %w", err)
	}
	defer rows.Close()

	var photos []database.Photo
	for rows.Next() {
		var ph database.Photo
		var takenAt sql.NullTime
		if err := rows.Scan(&ph.UID, &ph.FileName, &ph.Width, &ph.Height, &takenAt); err != nil {
			return nil, fmt.Errorf("scan catalog photo: %w", err)
		}
		ph.TakenAt = takenAt.Time
		photos = append(photos, ph)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog photos: %w", err)
	}
	return photos, nil
}

// DeletedPhotoUIDs returns UIDs of photos archived or deleted in PhotoPrism.
func (p *Pool) DeletedPhotoUIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT photo_uid FROM photos WHERE deleted_at IS NOT NULL ORDER BY photo_uid`)
	if err != nil {
		return nil, fmt.Errorf("query deleted photos: %w", err)
	}
	defer rows.Close()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		uids = append(uids, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return uids, nil
}
