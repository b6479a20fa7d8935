package sqlite

import (
	"context"
	"time"

	"github.com/ambientflow/ambientmix/internal/domain"
	"github.com/ambientflow/ambientmix/internal/domain/vo"
)

// ListEntries returns all cache entries ordered by sound id
func (s *Store) ListEntries(ctx context.Context) ([]*domain.CacheEntryMeta, error) {
	query := `
		SELECT sound_id, priority, preload, url, size_bytes, last_used_at
		FROM cache_entries
		ORDER BY sound_id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.CacheEntryMeta
	for rows.Next() {
		var (
			meta     domain.CacheEntryMeta
			priority string
			lastUsed int64
		)
		if err := rows.Scan(&meta.SoundID, &priority, &meta.Preload, &meta.URL, &meta.SizeBytes, &lastUsed); err != nil {
			return nil, err
		}
		// Unknown names from older schemas fall back to low.
		meta.Priority, _ = vo.ParsePriority(priority)
		meta.LastUsedAt = time.UnixMilli(lastUsed)
		entries = append(entries, &meta)
	}
	return entries, rows.Err()
}

// UpsertEntry inserts or replaces a cache entry
func (s *Store) UpsertEntry(ctx context.Context, meta *domain.CacheEntryMeta) error {
	query := `
		INSERT INTO cache_entries (sound_id, priority, preload, url, size_bytes, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sound_id) DO UPDATE SET
			priority = excluded.priority,
			preload = excluded.preload,
			url = excluded.url,
			size_bytes = excluded.size_bytes,
			last_used_at = excluded.last_used_at
	`
	_, err := s.db.ExecContext(ctx, query,
		meta.SoundID, meta.Priority.String(), meta.Preload, meta.URL, meta.SizeBytes, meta.LastUsedAt.UnixMilli())
	return err
}

// ResetSizes sets every entry's size to zero
func (s *Store) ResetSizes(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cache_entries SET size_bytes = 0`)
	return err
}

// ResetEntries sets every entry's size to zero and its last use to lastUsedAt
func (s *Store) ResetEntries(ctx context.Context, lastUsedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cache_entries SET size_bytes = 0, last_used_at = ?`, lastUsedAt.UnixMilli())
	return err
}
