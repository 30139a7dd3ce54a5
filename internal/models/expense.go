package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of Expense.Date.
const DateLayout = "2006-01-02"

// Expense is one payment on a list, split equally among Participants.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string `json:"id"`

	ListID string `json:"list_id"`

	// Payer paid the full Amount. Must be one of Participants.
	Payer Participant `json:"payer"`

	// Amount is the total in minor units of Currency. Always positive.
	Amount int64 `json:"amount"`

	Currency    string `json:"currency"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`

	// Date is the calendar day of the expense in DateLayout.
	Date string `json:"date"`

	// Participants share the expense equally. Never empty once stored.
	Participants []Participant `json:"participants"`

	// CreatedBy is the username that added the expense.
	CreatedBy string `json:"created_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// DeletedAt is set while the expense is in the trash.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the expense is soft-deleted.
func (e *Expense) IsDeleted() bool { return e.DeletedAt != nil }

// Validate checks the expense on its own, without list context.
func (e *Expense) Validate() error {
	if e.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidSplit)
	}
	if len(e.Participants) == 0 {
		return fmt.Errorf("%w: expense has no participants", ErrInvalidSplit)
	}
	if err := e.Payer.Validate(); err != nil {
		return fmt.Errorf("%w: payer: %v", ErrInvalidSplit, err)
	}
	for _, p := range e.Participants {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSplit, err)
		}
	}
	if !ContainsParticipant(e.Participants, e.Payer) {
		return fmt.Errorf("%w: payer %s is not a participant", ErrInvalidSplit, e.Payer)
	}
	if strings.TrimSpace(e.Date) != "" {
		if _, err := time.Parse(DateLayout, e.Date); err != nil {
			return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidInput, e.Date)
		}
	}
	return nil
}
