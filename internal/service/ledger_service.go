// Package service holds the ledger use cases: expense lifecycle, debts,
// lists and accounts. Every mutation of a list runs under that list's lock.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/locks"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/storage"
)

var tracer = otel.Tracer("service")

// DefaultDebtCacheTTL bounds how long a netted debt snapshot is reused.
const DefaultDebtCacheTTL = 5 * time.Minute

// ExpenseInput carries the user-supplied fields of an expense.
type ExpenseInput struct {
	ListID      string             `json:"list_id"`
	Payer       models.Participant `json:"payer"`
	Amount      decimal.Decimal    `json:"amount"`
	Description string             `json:"description"`
	Category    string             `json:"category"`
	// Date is YYYY-MM-DD; empty means today.
	Date string `json:"date"`
	// Participants defaults to every participant of the list.
	Participants []models.Participant `json:"participants"`
}

// LedgerService manages expenses and derives debts from them.
type LedgerService struct {
	store     storage.Store
	notifier  *notify.Notifier
	listLocks *locks.Keyed
	debts     *cache.Cache
}

// NewLedgerService creates a LedgerService. listLocks must be shared with
// every other component that mutates lists.
func NewLedgerService(store storage.Store, notifier *notify.Notifier, listLocks *locks.Keyed, debtTTL time.Duration) *LedgerService {
	if debtTTL <= 0 {
		debtTTL = DefaultDebtCacheTTL
	}
	return &LedgerService{
		store:     store,
		notifier:  notifier,
		listLocks: listLocks,
		debts:     cache.New(debtTTL, 2*debtTTL),
	}
}

func finish(span trace.Span, op string, err error) {
	metrics.Mutations.WithLabelValues(op, metrics.Outcome(err)).Inc()
	if err != nil {
		span.RecordError(pkgerrors.Wrap(err, op))
	}
	span.End()
}

// memberList loads listID and checks that actor is one of its registered participants.
func memberList(ctx context.Context, store storage.Store, actor, listID string) (*models.ExpenseList, error) {
	if listID == "" {
		return nil, fmt.Errorf("%w: list_id is required", models.ErrInvalidInput)
	}
	list, err := store.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if !list.IsRegisteredParticipant(actor) {
		return nil, fmt.Errorf("%w: %s is not a member of this list", models.ErrForbidden, actor)
	}
	return list, nil
}

// buildExpense validates in against list and fills the stored fields of e.
func buildExpense(list *models.ExpenseList, in ExpenseInput, e *models.Expense) error {
	amount, err := money.ToMinor(in.Amount, list.Currency)
	if err != nil {
		return err
	}

	participants := in.Participants
	if len(participants) == 0 {
		participants = list.Participants()
	}
	for _, p := range participants {
		if !list.HasParticipant(p) {
			return fmt.Errorf("%w: %s is not a participant of this list", models.ErrInvalidSplit, p)
		}
	}
	if !list.HasParticipant(in.Payer) {
		return fmt.Errorf("%w: payer %s is not a participant of this list", models.ErrInvalidSplit, in.Payer)
	}

	date := strings.TrimSpace(in.Date)
	if date == "" {
		date = time.Now().UTC().Format(models.DateLayout)
	}

	e.ListID = list.ID
	e.Payer = in.Payer
	e.Amount = amount
	e.Currency = list.Currency
	e.Description = strings.TrimSpace(in.Description)
	e.Category = strings.TrimSpace(in.Category)
	e.Date = date
	e.Participants = models.UniqueParticipants(participants)
	return e.Validate()
}

// AddExpense records a new expense on a list.
func (s *LedgerService) AddExpense(ctx context.Context, actor string, in ExpenseInput) (expense *models.Expense, err error) {
	ctx, span := tracer.Start(ctx, "Ledger.AddExpense", trace.WithAttributes(attribute.String("list_id", in.ListID)))
	defer func() { finish(span, "add_expense", err) }()

	slog.Info("AddExpense request received",
		"list_id", in.ListID,
		"username", actor,
		"participants_count", len(in.Participants),
	)

	unlock := s.listLocks.Lock(in.ListID)
	list, err := memberList(ctx, s.store, actor, in.ListID)
	if err == nil {
		expense = &models.Expense{CreatedBy: actor}
		err = buildExpense(list, in, expense)
	}
	if err == nil {
		err = s.checkListTotal(ctx, list.ID, "", expense.Amount)
	}
	if err == nil {
		err = s.store.CreateExpense(ctx, expense)
	}
	if err == nil {
		s.InvalidateDebts(list.ID)
	}
	unlock()
	if err != nil {
		slog.Warn("AddExpense failed", "list_id", in.ListID, "error", err)
		return nil, err
	}

	slog.Info("Expense added", "expense_id", expense.ID, "list_id", list.ID, "amount", expense.Amount)
	s.recordChange(ctx, list.ID, actor, models.ActionExpenseAdded, describe(expense))
	s.PublishDebts(ctx, list.ID)
	return expense, nil
}

// UpdateExpense replaces the fields of an active expense.
func (s *LedgerService) UpdateExpense(ctx context.Context, actor, expenseID string, in ExpenseInput) (expense *models.Expense, err error) {
	ctx, span := tracer.Start(ctx, "Ledger.UpdateExpense", trace.WithAttributes(attribute.String("expense_id", expenseID)))
	defer func() { finish(span, "update_expense", err) }()

	slog.Info("UpdateExpense request received", "expense_id", expenseID, "username", actor)

	expense, err = s.lockedExpense(ctx, actor, expenseID, func(list *models.ExpenseList, e *models.Expense) error {
		if e.IsDeleted() {
			return fmt.Errorf("%w: expense is in the trash", models.ErrConflict)
		}
		if err := buildExpense(list, in, e); err != nil {
			return err
		}
		if err := s.checkListTotal(ctx, list.ID, e.ID, e.Amount); err != nil {
			return err
		}
		return s.store.UpdateExpense(ctx, e)
	})
	if err != nil {
		slog.Warn("UpdateExpense failed", "expense_id", expenseID, "error", err)
		return nil, err
	}

	slog.Info("Expense updated", "expense_id", expense.ID, "list_id", expense.ListID)
	s.recordChange(ctx, expense.ListID, actor, models.ActionExpenseUpdated, describe(expense))
	s.PublishDebts(ctx, expense.ListID)
	return expense, nil
}

// checkListTotal fails when adding amount to every other expense of the
// list, trash included, would leave int64. Per-pair and per-participant sums
// never exceed that total.
func (s *LedgerService) checkListTotal(ctx context.Context, listID, skipID string, amount int64) error {
	total := amount
	for _, deleted := range []bool{false, true} {
		expenses, err := s.store.ListExpenses(ctx, storage.ExpenseFilter{ListID: listID, Deleted: deleted})
		if err != nil {
			return err
		}
		for _, e := range expenses {
			if e.ID == skipID {
				continue
			}
			if total, err = money.AddMinor(total, e.Amount); err != nil {
				return fmt.Errorf("list total out of range: %w", err)
			}
		}
	}
	return nil
}

// DeleteExpense moves an expense to the trash.
func (s *LedgerService) DeleteExpense(ctx context.Context, actor, expenseID string) (expense *models.Expense, err error) {
	ctx, span := tracer.Start(ctx, "Ledger.DeleteExpense", trace.WithAttributes(attribute.String("expense_id", expenseID)))
	defer func() { finish(span, "delete_expense", err) }()

	slog.Info("DeleteExpense request received", "expense_id", expenseID, "username", actor)

	expense, err = s.lockedExpense(ctx, actor, expenseID, func(_ *models.ExpenseList, e *models.Expense) error {
		if err := s.store.SoftDeleteExpense(ctx, e.ID); err != nil {
			return err
		}
		return s.reload(ctx, e)
	})
	if err != nil {
		slog.Warn("DeleteExpense failed", "expense_id", expenseID, "error", err)
		return nil, err
	}

	slog.Info("Expense deleted", "expense_id", expense.ID, "list_id", expense.ListID)
	s.recordChange(ctx, expense.ListID, actor, models.ActionExpenseDeleted, describe(expense))
	s.PublishDebts(ctx, expense.ListID)
	return expense, nil
}

// RestoreExpense moves an expense out of the trash.
func (s *LedgerService) RestoreExpense(ctx context.Context, actor, expenseID string) (expense *models.Expense, err error) {
	ctx, span := tracer.Start(ctx, "Ledger.RestoreExpense", trace.WithAttributes(attribute.String("expense_id", expenseID)))
	defer func() { finish(span, "restore_expense", err) }()

	slog.Info("RestoreExpense request received", "expense_id", expenseID, "username", actor)

	expense, err = s.lockedExpense(ctx, actor, expenseID, func(_ *models.ExpenseList, e *models.Expense) error {
		if err := s.store.RestoreExpense(ctx, e.ID); err != nil {
			return err
		}
		return s.reload(ctx, e)
	})
	if err != nil {
		slog.Warn("RestoreExpense failed", "expense_id", expenseID, "error", err)
		return nil, err
	}

	slog.Info("Expense restored", "expense_id", expense.ID, "list_id", expense.ListID)
	s.recordChange(ctx, expense.ListID, actor, models.ActionExpenseRestored, describe(expense))
	s.PublishDebts(ctx, expense.ListID)
	return expense, nil
}

// lockedExpense runs fn on an expense while holding its list lock and
// invalidates the list's debts when fn succeeds.
func (s *LedgerService) lockedExpense(ctx context.Context, actor, expenseID string, fn func(*models.ExpenseList, *models.Expense) error) (*models.Expense, error) {
	probe, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}

	unlock := s.listLocks.Lock(probe.ListID)
	defer unlock()

	// Re-read under the lock
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	list, err := memberList(ctx, s.store, actor, expense.ListID)
	if err != nil {
		return nil, err
	}
	if err := fn(list, expense); err != nil {
		return nil, err
	}
	s.InvalidateDebts(list.ID)
	return expense, nil
}

func (s *LedgerService) reload(ctx context.Context, e *models.Expense) error {
	fresh, err := s.store.GetExpense(ctx, e.ID)
	if err != nil {
		return err
	}
	*e = *fresh
	return nil
}

// ListExpenses returns the active expenses of a list, optionally limited to
// dates between start and end inclusive.
func (s *LedgerService) ListExpenses(ctx context.Context, actor, listID, start, end string) ([]models.Expense, error) {
	if _, err := memberList(ctx, s.store, actor, listID); err != nil {
		return nil, err
	}
	for _, d := range []string{start, end} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, d); err != nil {
			return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", models.ErrInvalidInput, d)
		}
	}
	return s.store.ListExpenses(ctx, storage.ExpenseFilter{ListID: listID, Start: start, End: end})
}

// ListTrash returns the soft-deleted expenses of a list.
func (s *LedgerService) ListTrash(ctx context.Context, actor, listID string) ([]models.Expense, error) {
	if _, err := memberList(ctx, s.store, actor, listID); err != nil {
		return nil, err
	}
	return s.store.ListExpenses(ctx, storage.ExpenseFilter{ListID: listID, Deleted: true})
}

// Debts returns the netted debts of a list. With mine set only the edges
// where actor is debtor or creditor are returned.
func (s *LedgerService) Debts(ctx context.Context, actor, listID string, mine bool) ([]models.DebtEdge, error) {
	if _, err := memberList(ctx, s.store, actor, listID); err != nil {
		return nil, err
	}
	edges, err := s.nettedDebts(ctx, listID)
	if err != nil {
		return nil, err
	}
	if mine {
		return calculator.Involving(edges, models.Registered(actor)), nil
	}
	return edges, nil
}

// Balances returns paid, owed and net totals per participant of a list.
func (s *LedgerService) Balances(ctx context.Context, actor, listID string) ([]models.Balance, error) {
	list, err := memberList(ctx, s.store, actor, listID)
	if err != nil {
		return nil, err
	}
	expenses, err := s.store.ListExpenses(ctx, storage.ExpenseFilter{ListID: listID})
	if err != nil {
		return nil, err
	}
	return calculator.CalculateBalances(expenses, list.Participants())
}

// nettedDebts returns the cached snapshot or recomputes it under the list
// lock, so a snapshot is never cached over a newer invalidation.
func (s *LedgerService) nettedDebts(ctx context.Context, listID string) ([]models.DebtEdge, error) {
	if cached, ok := s.debts.Get(listID); ok {
		return cached.([]models.DebtEdge), nil
	}

	unlock := s.listLocks.Lock(listID)
	defer unlock()

	if cached, ok := s.debts.Get(listID); ok {
		return cached.([]models.DebtEdge), nil
	}

	expenses, err := s.store.ListExpenses(ctx, storage.ExpenseFilter{ListID: listID})
	if err != nil {
		return nil, err
	}
	raw, err := calculator.BuildRawGraph(expenses)
	if err != nil {
		return nil, err
	}
	netted := calculator.Net(raw)
	s.debts.Set(listID, netted, cache.DefaultExpiration)
	return netted, nil
}

// InvalidateDebts drops the cached debt snapshot of listID.
func (s *LedgerService) InvalidateDebts(listID string) {
	s.debts.Delete(listID)
}

// PublishDebts pushes the current netted debts of listID to every registered
// participant. Failures are logged and never returned.
func (s *LedgerService) PublishDebts(ctx context.Context, listID string) {
	list, err := s.store.GetList(ctx, listID)
	if err != nil {
		slog.Warn("PublishDebts: failed to get list", "list_id", listID, "error", err)
		return
	}
	edges, err := s.nettedDebts(ctx, listID)
	if err != nil {
		slog.Warn("PublishDebts: failed to compute debts", "list_id", listID, "error", err)
		return
	}
	s.notifier.Broadcast(ctx, listID, list.RegisteredParticipants, notify.NewDebtsChanged(listID, edges))
}

// DebtsSnapshot is the initial DebtsChanged event for a new subscriber.
func (s *LedgerService) DebtsSnapshot(ctx context.Context, actor, listID string) (notify.Event, error) {
	edges, err := s.Debts(ctx, actor, listID, false)
	if err != nil {
		return notify.Event{}, err
	}
	return notify.NewDebtsChanged(listID, edges), nil
}

// Changelog returns the activity feed of a list, newest first.
func (s *LedgerService) Changelog(ctx context.Context, actor, listID string, limit int) ([]models.ChangelogEntry, error) {
	if _, err := memberList(ctx, s.store, actor, listID); err != nil {
		return nil, err
	}
	return s.store.ListChangelog(ctx, listID, limit)
}

func (s *LedgerService) recordChange(ctx context.Context, listID, username, action, detail string) {
	recordChange(ctx, s.store, listID, username, action, detail)
}

func recordChange(ctx context.Context, store storage.Store, listID, username, action, detail string) {
	entry := &models.ChangelogEntry{ListID: listID, Username: username, Action: action, Detail: detail}
	if err := store.AppendChangelog(ctx, entry); err != nil {
		slog.Warn("Failed to append changelog", "list_id", listID, "action", action, "error", err)
	}
}

func describe(e *models.Expense) string {
	return fmt.Sprintf("%s: %s paid %s %s", e.Description, e.Payer.Name, money.Format(e.Amount, e.Currency), e.Currency)
}
