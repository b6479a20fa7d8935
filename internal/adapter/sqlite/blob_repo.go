package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ambientflow/ambientmix/internal/domain"
	"github.com/ambientflow/ambientmix/internal/port"
)

// GetBlob retrieves the index record for key
func (s *Store) GetBlob(ctx context.Context, key string) (*port.BlobRecord, error) {
	query := `SELECT key, path, size, stored_size, stored_at FROM blobs WHERE key = ?`

	rec := &port.BlobRecord{}
	var storedAt int64
	err := s.db.QueryRowContext(ctx, query, key).Scan(&rec.Key, &rec.Path, &rec.Size, &rec.StoredSize, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.StoredAt = time.UnixMilli(storedAt)
	return rec, nil
}

// UpsertBlob inserts or replaces the index record for rec.Key
func (s *Store) UpsertBlob(ctx context.Context, rec *port.BlobRecord) error {
	query := `
		INSERT INTO blobs (key, path, size, stored_size, stored_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			path = excluded.path,
			size = excluded.size,
			stored_size = excluded.stored_size,
			stored_at = excluded.stored_at
	`
	_, err := s.db.ExecContext(ctx, query, rec.Key, rec.Path, rec.Size, rec.StoredSize, rec.StoredAt.UnixMilli())
	return err
}

// DeleteBlob removes the index record for key
func (s *Store) DeleteBlob(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key)
	return err
}

// ListBlobs returns all index records ordered by key
func (s *Store) ListBlobs(ctx context.Context) ([]*port.BlobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, path, size, stored_size, stored_at FROM blobs ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*port.BlobRecord
	for rows.Next() {
		rec := &port.BlobRecord{}
		var storedAt int64
		if err := rows.Scan(&rec.Key, &rec.Path, &rec.Size, &rec.StoredSize, &storedAt); err != nil {
			return nil, err
		}
		rec.StoredAt = time.UnixMilli(storedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteAllBlobs removes every index record
func (s *Store) DeleteAllBlobs(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs`)
	return err
}
