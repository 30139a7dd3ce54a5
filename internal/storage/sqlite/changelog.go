package sqlite

import (
	"context"

	"github.com/mmynk/splitledger/internal/models"
)

// AppendChangelog adds an entry to the activity feed of a list.
func (s *SQLiteStore) AppendChangelog(ctx context.Context, entry *models.ChangelogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO changelog (list_id, username, action, detail, created_at) VALUES (?, ?, ?, ?, ?)",
		entry.ListID, entry.Username, entry.Action, entry.Detail, toMillis(entry.CreatedAt),
	)
	if err != nil {
		return models.Unavailable("insert changelog entry", err)
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

// ListChangelog returns up to limit entries of a list, newest first.
func (s *SQLiteStore) ListChangelog(ctx context.Context, listID string, limit int) ([]models.ChangelogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, list_id, username, action, detail, created_at
		FROM changelog
		WHERE list_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		listID, limit,
	)
	if err != nil {
		return nil, models.Unavailable("list changelog", err)
	}
	defer rows.Close()

	entries := []models.ChangelogEntry{}
	for rows.Next() {
		var (
			e         models.ChangelogEntry
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.ListID, &e.Username, &e.Action, &e.Detail, &createdAt); err != nil {
			return nil, models.Unavailable("scan changelog entry", err)
		}
		e.CreatedAt = fromMillis(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("iterate changelog", err)
	}
	return entries, nil
}
