// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/mmynk/splitledger/internal/models"
)

// ExpenseFilter selects expenses of one list.
type ExpenseFilter struct {
	ListID string
	// Deleted selects the trash instead of active expenses.
	Deleted bool
	// Start and End bound Expense.Date inclusively (YYYY-MM-DD). Empty means unbounded.
	Start string
	End   string
}

// Store defines the interface for ledger storage operations.
// This abstraction allows swapping storage backends without changing the
// service layer. Implementations translate missing rows to models.NotFoundError
// and infrastructure failures to errors wrapping models.ErrStorageUnavailable.
type Store interface {
	// Users

	// CreateUser persists a new user. Returns models.ErrConflict if the username is taken.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UserExists(ctx context.Context, username string) (bool, error)

	// Lists

	CreateList(ctx context.Context, list *models.ExpenseList) error
	GetList(ctx context.Context, listID string) (*models.ExpenseList, error)
	// ListListsForUser returns the lists where username is a registered participant.
	ListListsForUser(ctx context.Context, username string) ([]models.ExpenseList, error)
	// UpdateList replaces the name, currency and participant sets of a list.
	UpdateList(ctx context.Context, list *models.ExpenseList) error
	// DeleteList hard-deletes a list together with its expenses, categories,
	// share requests and changelog.
	DeleteList(ctx context.Context, listID string) error

	// Expenses

	// CreateExpense persists a new expense. The expense.ID field will be populated by the store.
	CreateExpense(ctx context.Context, expense *models.Expense) error
	// GetExpense returns an expense whether active or soft-deleted.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)
	UpdateExpense(ctx context.Context, expense *models.Expense) error
	// SoftDeleteExpense moves an active expense to the trash.
	SoftDeleteExpense(ctx context.Context, expenseID string) error
	// RestoreExpense moves a soft-deleted expense back to the active set.
	RestoreExpense(ctx context.Context, expenseID string) error
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]models.Expense, error)

	// Share requests

	// CreateShareRequest returns models.ErrDuplicateRequest when a pending
	// request for the same list and user already exists.
	CreateShareRequest(ctx context.Context, req *models.ShareRequest) error
	GetShareRequest(ctx context.Context, requestID string) (*models.ShareRequest, error)
	// ListShareRequestsForUser returns requests sent to or by username, newest first.
	ListShareRequestsForUser(ctx context.Context, username string) ([]models.ShareRequest, error)
	// ResolveShareRequest moves a pending request to status. When status is
	// accepted the recipient joins the list in the same transaction.
	// Returns models.ErrConflict if the request is no longer pending.
	ResolveShareRequest(ctx context.Context, requestID string, status models.ShareStatus) (*models.ShareRequest, error)

	// Deletion requests

	// CreateDeletionRequest returns models.ErrDuplicateRequest when the list
	// already has a pending deletion request.
	CreateDeletionRequest(ctx context.Context, req *models.DeletionRequest) error
	GetDeletionRequest(ctx context.Context, requestID string) (*models.DeletionRequest, error)
	ListDeletionRequests(ctx context.Context, listID string) ([]models.DeletionRequest, error)
	// ApplyDeletionResponse records the answer of username carried in req and
	// stores req.Status. When the status is approved the list is deleted in
	// the same transaction. Returns models.ErrApprovalAlreadyRecorded if
	// username already answered.
	ApplyDeletionResponse(ctx context.Context, req *models.DeletionRequest, username string) error

	// Categories

	ListCategories(ctx context.Context, listID string) ([]models.Category, error)
	// CreateCategory returns models.ErrConflict if the list already has the name.
	CreateCategory(ctx context.Context, category *models.Category) error
	GetCategory(ctx context.Context, categoryID string) (*models.Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error

	// Changelog

	AppendChangelog(ctx context.Context, entry *models.ChangelogEntry) error
	// ListChangelog returns the newest entries of a list first.
	ListChangelog(ctx context.Context, listID string, limit int) ([]models.ChangelogEntry, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
