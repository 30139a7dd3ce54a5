package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mmynk/splitledger/internal/consensus"
	"github.com/mmynk/splitledger/internal/locks"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/storage"
)

// ListInput holds the fields of a new list.
type ListInput struct {
	Name                      string   `json:"name"`
	Currency                  string   `json:"currency"`
	NonRegisteredParticipants []string `json:"non_registered_participants"`
}

// ListUpdate holds an edit of a list. Nil fields are left unchanged.
type ListUpdate struct {
	Name                      *string  `json:"name"`
	Currency                  *string  `json:"currency"`
	RegisteredParticipants    []string `json:"registered_participants"`
	NonRegisteredParticipants []string `json:"non_registered_participants"`
}

// DeleteOutcome reports whether a list was removed at once or a deletion
// request was opened.
type DeleteOutcome struct {
	Deleted bool
	Request *models.DeletionRequest
}

// ListService manages expense lists and their membership.
type ListService struct {
	store       storage.Store
	listLocks   *locks.Keyed
	ledger      *LedgerService
	coordinator *consensus.Coordinator
}

// NewListService creates a ListService.
func NewListService(store storage.Store, listLocks *locks.Keyed, ledger *LedgerService, coordinator *consensus.Coordinator) *ListService {
	return &ListService{
		store:       store,
		listLocks:   listLocks,
		ledger:      ledger,
		coordinator: coordinator,
	}
}

// CreateList creates a list owned by actor.
func (s *ListService) CreateList(ctx context.Context, actor string, in ListInput) (list *models.ExpenseList, err error) {
	ctx, span := tracer.Start(ctx, "Lists.CreateList")
	defer func() { finish(span, "create_list", err) }()

	slog.Info("CreateList request received",
		"name", in.Name,
		"username", actor,
		"guests_count", len(in.NonRegisteredParticipants),
	)

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: list name is required", models.ErrInvalidInput)
	}
	if err := s.requireUser(ctx, actor); err != nil {
		return nil, err
	}
	currency, err := money.NormalizeCurrency(in.Currency)
	if err != nil {
		return nil, err
	}
	guests, err := cleanGuests(in.NonRegisteredParticipants)
	if err != nil {
		return nil, err
	}

	list = &models.ExpenseList{
		Name:                      name,
		Owner:                     actor,
		NonRegisteredParticipants: guests,
		Currency:                  currency,
	}
	if err := s.store.CreateList(ctx, list); err != nil {
		slog.Error("Failed to create list", "error", err)
		return nil, err
	}

	slog.Info("List created", "list_id", list.ID, "owner", actor)
	recordChange(ctx, s.store, list.ID, actor, models.ActionListCreated, list.Name)
	return list, nil
}

// GetList returns a list visible to actor.
func (s *ListService) GetList(ctx context.Context, actor, listID string) (*models.ExpenseList, error) {
	return memberList(ctx, s.store, actor, listID)
}

// ListForUser returns every list where actor is a registered participant.
func (s *ListService) ListForUser(ctx context.Context, actor string) ([]models.ExpenseList, error) {
	if actor == "" {
		return nil, fmt.Errorf("%w: username is required", models.ErrInvalidInput)
	}
	return s.store.ListListsForUser(ctx, actor)
}

// UpdateList applies an edit to a list. Registered users join only through
// share requests; only the owner removes registered participants and the
// owner is never removed. Participants referenced by an expense stay, and no
// registered participant leaves while a deletion request is pending.
func (s *ListService) UpdateList(ctx context.Context, actor, listID string, upd ListUpdate) (list *models.ExpenseList, err error) {
	ctx, span := tracer.Start(ctx, "Lists.UpdateList", trace.WithAttributes(attribute.String("list_id", listID)))
	defer func() { finish(span, "update_list", err) }()

	slog.Info("UpdateList request received", "list_id", listID, "username", actor)

	unlock := s.listLocks.Lock(listID)
	defer unlock()

	list, err = memberList(ctx, s.store, actor, listID)
	if err != nil {
		return nil, err
	}

	var removed []models.Participant
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: list name is required", models.ErrInvalidInput)
		}
		list.Name = name
	}

	currencyChanged := false
	if upd.Currency != nil {
		currency, err := money.NormalizeCurrency(*upd.Currency)
		if err != nil {
			return nil, err
		}
		currencyChanged = money.Fraction(currency) != money.Fraction(list.Currency)
		list.Currency = currency
	}

	if upd.RegisteredParticipants != nil {
		next := slices.Clone(upd.RegisteredParticipants)
		for _, u := range next {
			if !list.IsRegisteredParticipant(u) {
				return nil, fmt.Errorf("%w: %s must be invited with a share request", models.ErrForbidden, u)
			}
		}
		if !slices.Contains(next, list.Owner) {
			return nil, fmt.Errorf("%w: the owner cannot be removed", models.ErrConflict)
		}
		for _, u := range list.RegisteredParticipants {
			if !slices.Contains(next, u) {
				removed = append(removed, models.Registered(u))
			}
		}
		if len(removed) > 0 && actor != list.Owner {
			return nil, fmt.Errorf("%w: only the owner removes members", models.ErrForbidden)
		}
		if len(removed) > 0 {
			pending, err := consensus.PendingDeletion(ctx, s.store, listID)
			if err != nil {
				return nil, err
			}
			if pending != nil {
				return nil, fmt.Errorf("%w: members cannot leave while deletion request %s is pending", models.ErrConflict, pending.ID)
			}
		}
		list.RegisteredParticipants = next
	}

	if upd.NonRegisteredParticipants != nil {
		guests, err := cleanGuests(upd.NonRegisteredParticipants)
		if err != nil {
			return nil, err
		}
		for _, g := range list.NonRegisteredParticipants {
			if !slices.Contains(guests, g) {
				removed = append(removed, models.Guest(g))
			}
		}
		list.NonRegisteredParticipants = guests
	}

	if len(removed) > 0 || currencyChanged {
		if err := s.checkExpenses(ctx, listID, removed, currencyChanged); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateList(ctx, list); err != nil {
		slog.Error("Failed to update list", "list_id", listID, "error", err)
		return nil, err
	}
	s.ledger.InvalidateDebts(listID)

	slog.Info("List updated", "list_id", listID, "removed", len(removed))
	recordChange(ctx, s.store, listID, actor, models.ActionListUpdated, list.Name)
	return s.store.GetList(ctx, listID)
}

// checkExpenses rejects removing a participant that an active or trashed
// expense references, and changing the minor-unit scale of recorded amounts.
func (s *ListService) checkExpenses(ctx context.Context, listID string, removed []models.Participant, currencyChanged bool) error {
	var all []models.Expense
	for _, deleted := range []bool{false, true} {
		expenses, err := s.store.ListExpenses(ctx, storage.ExpenseFilter{ListID: listID, Deleted: deleted})
		if err != nil {
			return err
		}
		all = append(all, expenses...)
	}
	if currencyChanged && len(all) > 0 {
		return fmt.Errorf("%w: currency precision cannot change once expenses exist", models.ErrConflict)
	}
	for _, e := range all {
		for _, p := range removed {
			if e.Payer == p || models.ContainsParticipant(e.Participants, p) {
				return fmt.Errorf("%w: %s is referenced by expense %s", models.ErrConflict, p, e.ID)
			}
		}
	}
	return nil
}

// DeleteList removes a list immediately when the owner is its only registered
// participant; otherwise it opens a deletion request for the other members.
// Both cases are decided under one hold of the list lock.
func (s *ListService) DeleteList(ctx context.Context, actor, listID string) (outcome *DeleteOutcome, err error) {
	ctx, span := tracer.Start(ctx, "Lists.DeleteList", trace.WithAttributes(attribute.String("list_id", listID)))
	defer func() { finish(span, "delete_list", err) }()

	slog.Info("DeleteList request received", "list_id", listID, "username", actor)

	unlock := s.listLocks.Lock(listID)
	defer unlock()

	list, err := memberList(ctx, s.store, actor, listID)
	if err != nil {
		return nil, err
	}
	if len(list.RegisteredParticipants) > 1 {
		req, err := s.coordinator.OpenDeletion(ctx, actor, list)
		if err != nil {
			return nil, err
		}
		return &DeleteOutcome{Request: req}, nil
	}

	pending, err := consensus.PendingDeletion(ctx, s.store, listID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, fmt.Errorf("%w: deletion request %s is still pending", models.ErrConflict, pending.ID)
	}
	if err := s.store.DeleteList(ctx, listID); err != nil {
		return nil, err
	}
	s.ledger.InvalidateDebts(listID)

	slog.Info("List deleted", "list_id", listID)
	return &DeleteOutcome{Deleted: true}, nil
}

func (s *ListService) requireUser(ctx context.Context, username string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", models.ErrInvalidInput)
	}
	ok, err := s.store.UserExists(ctx, username)
	if err != nil {
		return err
	}
	if !ok {
		return models.NotFound("user")
	}
	return nil
}

func cleanGuests(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if err := models.Guest(n).Validate(); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
