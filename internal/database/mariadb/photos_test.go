//go:build integration

package mariadb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const catalogSchema = `
CREATE TABLE photos (
	id INT AUTO_INCREMENT PRIMARY KEY,
	photo_uid VARCHAR(42) NOT NULL,
	taken_at DATETIME NULL,
	updated_at DATETIME NOT NULL,
	deleted_at DATETIME NULL
);
CREATE TABLE files (
	id INT AUTO_INCREMENT PRIMARY KEY,
	photo_id INT NOT NULL,
	file_name VARCHAR(1024) NOT NULL,
	file_width INT NOT NULL DEFAULT 0,
	file_height INT NOT NULL DEFAULT 0,
	file_primary TINYINT(1) NOT NULL DEFAULT 0,
	file_missing TINYINT(1) NOT NULL DEFAULT 0
);
INSERT INTO photos (id, photo_uid, taken_at, updated_at, deleted_at) VALUES
	(1, 'pb', '2024-05-01 10:00:00', '2024-06-01 00:00:00', NULL),
	(2, 'pa', NULL, '2024-01-01 00:00:00', NULL),
	(3, 'pc', NULL, '2024-06-01 00:00:00', '2024-07-01 00:00:00');
INSERT INTO files (photo_id, file_name, file_width, file_height, file_primary, file_missing) VALUES
	(1, '2024/05/b.jpg', 4000, 3000, 1, 0),
	(1, '2024/05/b.xmp', 0, 0, 0, 0),
	(2, '2024/01/a.jpg', 800, 600, 1, 0),
	(3, '2024/06/c.jpg', 100, 100, 1, 0);
`

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mariadb:11",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MARIADB_USER":          "test",
			"MARIADB_PASSWORD":      "test",
			"MARIADB_DATABASE":      "photoprism",
			"MARIADB_ROOT_PASSWORD": "root",
		},
		WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("test:test@tcp(%s:%s)/photoprism?multiStatements=true", host, port.Port())
	pool, err := NewPool(dsn)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if _, err := pool.db.ExecContext(ctx, catalogSchema); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to create catalog schema: %v", err)
	}

	return pool, func() {
		pool.Close()
		container.Terminate(ctx)
	}
}

func TestPhotos(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	t.Run("FullCatalog", func(t *testing.T) {
		photos, err := pool.Photos(ctx, time.Time{})
		if err != nil {
			t.Fatalf("Photos failed: %v", err)
		}
		if len(photos) != 2 {
			t.Fatalf("Expected 2 live photos, got %d", len(photos))
		}
		if photos[0].UID != "pa" || photos[1].UID != "pb" {
			t.Errorf("Expected [pa pb], got [%s %s]", photos[0].UID, photos[1].UID)
		}
		if photos[1].FileName != "2024/05/b.jpg" || photos[1].Width != 4000 {
			t.Errorf("Unexpected primary file: %+v", photos[1])
		}
		if photos[1].TakenAt.Year() != 2024 || !photos[0].TakenAt.IsZero() {
			t.Errorf("Unexpected taken_at values: %v, %v", photos[0].TakenAt, photos[1].TakenAt)
		}
	})

	t.Run("Since", func(t *testing.T) {
		photos, err := pool.Photos(ctx, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("Photos failed: %v", err)
		}
		if len(photos) != 1 || photos[0].UID != "pb" {
			t.Errorf("Expected only pb, got %+v", photos)
		}
	})

	t.Run("Deleted", func(t *testing.T) {
		uids, err := pool.DeletedPhotoUIDs(ctx)
		if err != nil {
			t.Fatalf("DeletedPhotoUIDs failed: %v", err)
		}
		if len(uids) != 1 || uids[0] != "pc" {
			t.Errorf("Expected [pc], got %v", uids)
		}
	})
}
