package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

const expenseColumns = `id, list_id, payer_kind, payer_name, amount, currency, description,
	category, date, created_by, created_at, updated_at, deleted_at`

// CreateExpense persists a new expense and its participants.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	ts := now()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = ts
	}
	expense.UpdatedAt = expense.CreatedAt
	expense.DeletedAt = nil
	expense.Participants = models.UniqueParticipants(expense.Participants)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO expenses (id, list_id, payer_kind, payer_name, amount, currency, description,
				category, date, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			expense.ID, expense.ListID, expense.Payer.Kind.String(), expense.Payer.Name,
			expense.Amount, expense.Currency, expense.Description, expense.Category,
			expense.Date, expense.CreatedBy, toMillis(expense.CreatedAt), toMillis(expense.UpdatedAt),
		)
		if err != nil {
			return models.Unavailable("insert expense", err)
		}
		return insertExpenseParticipants(ctx, tx, expense)
	})
}

func insertExpenseParticipants(ctx context.Context, tx *sql.Tx, expense *models.Expense) error {
	for _, p := range expense.Participants {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO expense_participants (expense_id, kind, name) VALUES (?, ?, ?)",
			expense.ID, p.Kind.String(), p.Name,
		)
		if err != nil {
			return models.Unavailable("insert expense participant", err)
		}
	}
	return nil
}

// GetExpense retrieves an expense by ID, including soft-deleted ones.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE id = ?", expenseID)
	expense, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("expense")
	}
	if err != nil {
		return nil, models.Unavailable("get expense", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, name FROM expense_participants WHERE expense_id = ?",
		expenseID,
	)
	if err != nil {
		return nil, models.Unavailable("get expense participants", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		expense.Participants = append(expense.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("iterate expense participants", err)
	}
	models.SortParticipants(expense.Participants)

	return expense, nil
}

// UpdateExpense replaces the fields and participants of an existing expense.
// The deletion state is left untouched.
func (s *SQLiteStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	expense.UpdatedAt = now()
	expense.Participants = models.UniqueParticipants(expense.Participants)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE expenses
			SET payer_kind = ?, payer_name = ?, amount = ?, currency = ?, description = ?,
				category = ?, date = ?, updated_at = ?
			WHERE id = ?`,
			expense.Payer.Kind.String(), expense.Payer.Name, expense.Amount, expense.Currency,
			expense.Description, expense.Category, expense.Date, toMillis(expense.UpdatedAt),
			expense.ID,
		)
		if err != nil {
			return models.Unavailable("update expense", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.NotFound("expense")
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM expense_participants WHERE expense_id = ?", expense.ID); err != nil {
			return models.Unavailable("clear expense participants", err)
		}
		return insertExpenseParticipants(ctx, tx, expense)
	})
}

// SoftDeleteExpense moves an active expense to the trash.
func (s *SQLiteStore) SoftDeleteExpense(ctx context.Context, expenseID string) error {
	return s.setDeletedAt(ctx, expenseID, "in the trash",
		"UPDATE expenses SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		toMillis(now()), expenseID,
	)
}

// RestoreExpense moves a soft-deleted expense back to the active set.
// Every other field is left as it was before deletion.
func (s *SQLiteStore) RestoreExpense(ctx context.Context, expenseID string) error {
	return s.setDeletedAt(ctx, expenseID, "active",
		"UPDATE expenses SET deleted_at = NULL WHERE id = ? AND deleted_at IS NOT NULL",
		expenseID,
	)
}

// setDeletedAt runs a single-statement state change. When no row matches it
// distinguishes a missing expense from one already in the requested state.
func (s *SQLiteStore) setDeletedAt(ctx context.Context, expenseID, state, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return models.Unavailable("update expense state", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM expenses WHERE id = ?", expenseID).Scan(&exists)
	if err != nil {
		return models.Unavailable("check expense", err)
	}
	if exists == 0 {
		return models.NotFound("expense")
	}
	return fmt.Errorf("%w: expense %s is already %s", models.ErrConflict, expenseID, state)
}

// ListExpenses returns the active or trashed expenses of a list.
// Active expenses are ordered by date, newest first; trash by deletion time.
func (s *SQLiteStore) ListExpenses(ctx context.Context, filter storage.ExpenseFilter) ([]models.Expense, error) {
	var (
		where []string
		args  []any
	)
	where = append(where, "list_id = ?")
	args = append(args, filter.ListID)
	order := "date DESC, created_at DESC, id"
	if filter.Deleted {
		where = append(where, "deleted_at IS NOT NULL")
		order = "deleted_at DESC, id"
	} else {
		where = append(where, "deleted_at IS NULL")
	}
	if filter.Start != "" {
		where = append(where, "date >= ?")
		args = append(args, filter.Start)
	}
	if filter.End != "" {
		where = append(where, "date <= ?")
		args = append(args, filter.End)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE "+strings.Join(where, " AND ")+" ORDER BY "+order,
		args...,
	)
	if err != nil {
		return nil, models.Unavailable("list expenses", err)
	}

	expenses := []models.Expense{}
	index := make(map[string]int)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, models.Unavailable("scan expense", err)
		}
		index[e.ID] = len(expenses)
		expenses = append(expenses, *e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("iterate expenses", err)
	}
	if len(expenses) == 0 {
		return expenses, nil
	}

	// Get participants for every expense of the list in one pass
	prows, err := s.db.QueryContext(ctx, `
		SELECT ep.expense_id, ep.kind, ep.name
		FROM expense_participants ep
		JOIN expenses e ON e.id = ep.expense_id
		WHERE e.list_id = ?`,
		filter.ListID,
	)
	if err != nil {
		return nil, models.Unavailable("get expense participants", err)
	}
	defer prows.Close()

	for prows.Next() {
		var expenseID, kind, name string
		if err := prows.Scan(&expenseID, &kind, &name); err != nil {
			return nil, models.Unavailable("scan expense participant", err)
		}
		i, ok := index[expenseID]
		if !ok {
			continue
		}
		p, err := participantFromRow(kind, name)
		if err != nil {
			return nil, err
		}
		expenses[i].Participants = append(expenses[i].Participants, p)
	}
	if err := prows.Err(); err != nil {
		return nil, models.Unavailable("iterate expense participants", err)
	}

	for i := range expenses {
		models.SortParticipants(expenses[i].Participants)
	}
	return expenses, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(row scanner) (*models.Expense, error) {
	e := &models.Expense{}
	var (
		payerKind, payerName string
		createdAt, updatedAt int64
		deletedAt            sql.NullInt64
	)
	err := row.Scan(
		&e.ID, &e.ListID, &payerKind, &payerName, &e.Amount, &e.Currency, &e.Description,
		&e.Category, &e.Date, &e.CreatedBy, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	payer, err := participantFromRow(payerKind, payerName)
	if err != nil {
		return nil, err
	}
	e.Payer = payer
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	e.DeletedAt = fromNullMillis(deletedAt)
	return e, nil
}

func scanParticipant(rows *sql.Rows) (models.Participant, error) {
	var kind, name string
	if err := rows.Scan(&kind, &name); err != nil {
		return models.Participant{}, models.Unavailable("scan participant", err)
	}
	return participantFromRow(kind, name)
}

func participantFromRow(kind, name string) (models.Participant, error) {
	k, err := models.ParseParticipantKind(kind)
	if err != nil {
		return models.Participant{}, models.Unavailable("decode participant", err)
	}
	return models.Participant{Kind: k, Name: name}, nil
}
