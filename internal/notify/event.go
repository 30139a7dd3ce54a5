// Package notify delivers ledger events to live subscribers keyed by
// (username, list).
package notify

import (
	"time"

	"github.com/mmynk/splitledger/internal/models"
)

// EventKind identifies the payload of an Event.
type EventKind string

const (
	// DebtsChanged carries the full netted debt set of a list.
	DebtsChanged EventKind = "debts_changed"
	// RequestChanged reports a share or deletion request transition.
	RequestChanged EventKind = "request_changed"
)

// Event is the payload pushed to subscribers.
type Event struct {
	Kind   EventKind `json:"kind"`
	ListID string    `json:"list_id"`

	// Debts is set for DebtsChanged.
	Debts []models.DebtEdge `json:"debts"`

	// Request fields are set for RequestChanged.
	RequestID   string             `json:"request_id,omitempty"`
	RequestKind models.RequestKind `json:"request_kind,omitempty"`
	Status      string             `json:"status,omitempty"`

	At time.Time `json:"at"`
}

// NewDebtsChanged builds a DebtsChanged event.
func NewDebtsChanged(listID string, debts []models.DebtEdge) Event {
	if debts == nil {
		debts = []models.DebtEdge{}
	}
	return Event{Kind: DebtsChanged, ListID: listID, Debts: debts, At: time.Now().UTC()}
}

// NewRequestChanged builds a RequestChanged event.
func NewRequestChanged(listID, requestID string, kind models.RequestKind, status string) Event {
	return Event{
		Kind:        RequestChanged,
		ListID:      listID,
		RequestID:   requestID,
		RequestKind: kind,
		Status:      status,
		At:          time.Now().UTC(),
	}
}
