package models

import (
	"slices"
	"time"
)

// ShareStatus is the state of a ShareRequest.
type ShareStatus string

const (
	SharePending  ShareStatus = "pending"
	ShareAccepted ShareStatus = "accepted"
	ShareRejected ShareStatus = "rejected"
)

// ShareRequest invites a registered user to join a list.
type ShareRequest struct {
	ID       string `json:"id"`
	ListID   string `json:"list_id"`
	ListName string `json:"list_name,omitempty"`

	// FromUser is the registered participant who sent the invitation.
	FromUser string `json:"from_user"`
	// ToUser is the only user allowed to respond.
	ToUser string `json:"to_user"`

	Message    string      `json:"message,omitempty"`
	Status     ShareStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
}

// IsTerminal reports whether the request has been answered.
func (r *ShareRequest) IsTerminal() bool { return r.Status != SharePending }

// DeletionStatus is the state of a DeletionRequest.
type DeletionStatus string

const (
	DeletionPending  DeletionStatus = "pending"
	DeletionApproved DeletionStatus = "approved"
	DeletionRejected DeletionStatus = "rejected"
)

// DeletionRequest asks every other registered participant to agree to
// deleting a shared list.
type DeletionRequest struct {
	ID          string `json:"id"`
	ListID      string `json:"list_id"`
	ListName    string `json:"list_name,omitempty"`
	RequestedBy string `json:"requested_by"`

	// RequiredApprovers is fixed when the request is created.
	RequiredApprovers []string `json:"required_approvers"`

	// Approvals maps each approver that responded to their answer.
	Approvals map[string]bool `json:"approvals"`

	Status     DeletionStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// IsTerminal reports whether the request has been decided.
func (r *DeletionRequest) IsTerminal() bool { return r.Status != DeletionPending }

// IsApprover reports whether username must answer the request.
func (r *DeletionRequest) IsApprover(username string) bool {
	return slices.Contains(r.RequiredApprovers, username)
}

// HasResponded reports whether username already answered.
func (r *DeletionRequest) HasResponded(username string) bool {
	_, ok := r.Approvals[username]
	return ok
}

// Audience returns the requester followed by every approver.
func (r *DeletionRequest) Audience() []string {
	out := append([]string{r.RequestedBy}, r.RequiredApprovers...)
	slices.Sort(out)
	return slices.Compact(out)
}

// RequestKind distinguishes the two consent workflows in notifications.
type RequestKind string

const (
	RequestKindShare    RequestKind = "share"
	RequestKindDeletion RequestKind = "deletion"
)
