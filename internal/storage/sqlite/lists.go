package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
)

// CreateList persists a new list with its participants.
func (s *SQLiteStore) CreateList(ctx context.Context, list *models.ExpenseList) error {
	if list.ID == "" {
		list.ID = uuid.New().String()
	}
	if list.CreatedAt.IsZero() {
		list.CreatedAt = now()
	}
	list.Normalize()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO lists (id, name, owner, currency, created_at) VALUES (?, ?, ?, ?, ?)",
			list.ID, list.Name, list.Owner, list.Currency, toMillis(list.CreatedAt),
		)
		if err != nil {
			return models.Unavailable("insert list", err)
		}
		return insertMembers(ctx, tx, list)
	})
}

func insertMembers(ctx context.Context, tx *sql.Tx, list *models.ExpenseList) error {
	for _, p := range list.Participants() {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO list_members (list_id, kind, name) VALUES (?, ?, ?)",
			list.ID, p.Kind.String(), p.Name,
		)
		if err != nil {
			return models.Unavailable("insert list member", err)
		}
	}
	return nil
}

// GetList retrieves a list by ID, including its participants.
func (s *SQLiteStore) GetList(ctx context.Context, listID string) (*models.ExpenseList, error) {
	return getList(ctx, s.db, listID)
}

func getList(ctx context.Context, q queryer, listID string) (*models.ExpenseList, error) {
	list := &models.ExpenseList{}
	var createdAt int64
	err := q.QueryRowContext(ctx,
		"SELECT id, name, owner, currency, created_at FROM lists WHERE id = ?",
		listID,
	).Scan(&list.ID, &list.Name, &list.Owner, &list.Currency, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("list")
	}
	if err != nil {
		return nil, models.Unavailable("get list", err)
	}
	list.CreatedAt = fromMillis(createdAt)

	if err := loadMembers(ctx, q, list); err != nil {
		return nil, err
	}
	return list, nil
}

func loadMembers(ctx context.Context, q queryer, list *models.ExpenseList) error {
	rows, err := q.QueryContext(ctx,
		"SELECT kind, name FROM list_members WHERE list_id = ? ORDER BY kind DESC, name",
		list.ID,
	)
	if err != nil {
		return models.Unavailable("get list members", err)
	}
	defer rows.Close()

	list.RegisteredParticipants = []string{}
	list.NonRegisteredParticipants = []string{}
	for rows.Next() {
		var kind, name string
		if err := rows.Scan(&kind, &name); err != nil {
			return models.Unavailable("scan list member", err)
		}
		if kind == models.KindRegistered.String() {
			list.RegisteredParticipants = append(list.RegisteredParticipants, name)
		} else {
			list.NonRegisteredParticipants = append(list.NonRegisteredParticipants, name)
		}
	}
	if err := rows.Err(); err != nil {
		return models.Unavailable("iterate list members", err)
	}
	return nil
}

// ListListsForUser returns every list where username is a registered participant.
func (s *SQLiteStore) ListListsForUser(ctx context.Context, username string) ([]models.ExpenseList, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id
		FROM lists l
		JOIN list_members m ON m.list_id = l.id
		WHERE m.kind = 'registered' AND m.name = ?
		ORDER BY l.created_at, l.id
	`, username)
	if err != nil {
		return nil, models.Unavailable("list lists", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, models.Unavailable("scan list id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("iterate lists", err)
	}

	lists := make([]models.ExpenseList, 0, len(ids))
	for _, id := range ids {
		list, err := s.GetList(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			// deleted between the two queries
			continue
		}
		if err != nil {
			return nil, err
		}
		lists = append(lists, *list)
	}
	return lists, nil
}

// UpdateList replaces the mutable fields and the participant sets of a list.
func (s *SQLiteStore) UpdateList(ctx context.Context, list *models.ExpenseList) error {
	list.Normalize()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE lists SET name = ?, currency = ? WHERE id = ?",
			list.Name, list.Currency, list.ID,
		)
		if err != nil {
			return models.Unavailable("update list", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.NotFound("list")
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM list_members WHERE list_id = ?", list.ID); err != nil {
			return models.Unavailable("clear list members", err)
		}
		return insertMembers(ctx, tx, list)
	})
}

// DeleteList removes a list. Expenses, categories, share requests and
// changelog entries go with it through ON DELETE CASCADE.
func (s *SQLiteStore) DeleteList(ctx context.Context, listID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteList(ctx, tx, listID)
	})
}

func deleteList(ctx context.Context, tx *sql.Tx, listID string) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM lists WHERE id = ?", listID)
	if err != nil {
		return models.Unavailable("delete list", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to delete list %s: %w", listID, models.NotFound("list"))
	}
	return nil
}
