package models

import (
	"slices"
	"time"
)

// DefaultCurrency is used when a list is created without a currency label.
const DefaultCurrency = "EUR"

// ExpenseList is a named shared ledger with its own participants and currency.
// The currency is a display label only; amounts are never converted.
type ExpenseList struct {
	// ID is the unique identifier for the list (UUID format).
	ID string `json:"id"`

	// Name is the display name (e.g., "Flat", "Lapland trip").
	Name string `json:"name"`

	// Owner is the username that created the list. Always a registered participant.
	Owner string `json:"owner"`

	// RegisteredParticipants are usernames of registered users sharing the list.
	RegisteredParticipants []string `json:"registered_participants"`

	// NonRegisteredParticipants are guest display names.
	NonRegisteredParticipants []string `json:"non_registered_participants"`

	// Currency is an ISO 4217 code used for display and minor-unit parsing.
	Currency string `json:"currency"`

	CreatedAt time.Time `json:"created_at"`
}

// IsRegisteredParticipant reports whether username is a registered participant.
func (l *ExpenseList) IsRegisteredParticipant(username string) bool {
	return slices.Contains(l.RegisteredParticipants, username)
}

// HasParticipant reports whether p belongs to the list.
func (l *ExpenseList) HasParticipant(p Participant) bool {
	switch p.Kind {
	case KindRegistered:
		return slices.Contains(l.RegisteredParticipants, p.Name)
	case KindGuest:
		return slices.Contains(l.NonRegisteredParticipants, p.Name)
	default:
		return false
	}
}

// Participants returns every participant of the list, sorted.
func (l *ExpenseList) Participants() []Participant {
	ps := make([]Participant, 0, len(l.RegisteredParticipants)+len(l.NonRegisteredParticipants))
	for _, u := range l.RegisteredParticipants {
		ps = append(ps, Registered(u))
	}
	for _, g := range l.NonRegisteredParticipants {
		ps = append(ps, Guest(g))
	}
	return UniqueParticipants(ps)
}

// Normalize sorts and deduplicates the participant sets and makes sure the
// owner is registered.
func (l *ExpenseList) Normalize() {
	regs := append([]string{}, l.RegisteredParticipants...)
	if l.Owner != "" {
		regs = append(regs, l.Owner)
	}
	l.RegisteredParticipants = uniqueStrings(regs)
	l.NonRegisteredParticipants = uniqueStrings(l.NonRegisteredParticipants)
	if l.Currency == "" {
		l.Currency = DefaultCurrency
	}
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Category is a per-list expense category name.
type Category struct {
	ID        string    `json:"id"`
	ListID    string    `json:"list_id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ChangelogEntry records one mutation of a list for its activity feed.
type ChangelogEntry struct {
	ID        int64     `json:"id"`
	ListID    string    `json:"list_id"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Changelog actions.
const (
	ActionListCreated     = "list_created"
	ActionListUpdated     = "list_updated"
	ActionExpenseAdded    = "expense_added"
	ActionExpenseUpdated  = "expense_updated"
	ActionExpenseDeleted  = "expense_deleted"
	ActionExpenseRestored = "expense_restored"
	ActionMemberJoined    = "member_joined"
	ActionShareRequested  = "share_requested"
	ActionShareRejected   = "share_rejected"
	ActionDeleteRequested = "delete_requested"
	ActionDeleteRejected  = "delete_rejected"
	ActionCategoryAdded   = "category_added"
	ActionCategoryRemoved = "category_removed"
)
