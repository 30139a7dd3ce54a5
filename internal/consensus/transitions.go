// Package consensus coordinates operations that need agreement from several
// registered users: inviting a user to a list and deleting a shared list.
package consensus

import (
	"fmt"
	"maps"

	"github.com/mmynk/splitledger/internal/models"
)

// NextShareStatus returns the status a share request moves to when actor
// answers it. Only the invited user may answer, and only once.
func NextShareStatus(req *models.ShareRequest, actor string, accept bool) (models.ShareStatus, error) {
	if actor != req.ToUser {
		return "", fmt.Errorf("%w: only %s can respond to this request", models.ErrForbidden, req.ToUser)
	}
	if req.IsTerminal() {
		return "", fmt.Errorf("%w: request is already %s", models.ErrConflict, req.Status)
	}
	if accept {
		return models.ShareAccepted, nil
	}
	return models.ShareRejected, nil
}

// DecideDeletion evaluates the approvals collected so far: any refusal
// rejects, unanimous approval approves, anything else stays pending.
func DecideDeletion(approvers []string, approvals map[string]bool) models.DeletionStatus {
	for _, approved := range approvals {
		if !approved {
			return models.DeletionRejected
		}
	}
	for _, approver := range approvers {
		if !approvals[approver] {
			return models.DeletionPending
		}
	}
	return models.DeletionApproved
}

// ApplyDeletionVote returns a copy of req with actor's answer recorded and
// the resulting status. A repeated answer is reported before a terminal
// state so that approvers who already answered always get the same error.
func ApplyDeletionVote(req *models.DeletionRequest, actor string, approve bool) (*models.DeletionRequest, error) {
	if !req.IsApprover(actor) {
		return nil, fmt.Errorf("%w: %s is not an approver of this request", models.ErrForbidden, actor)
	}
	if req.HasResponded(actor) {
		return nil, fmt.Errorf("%w: %s already responded", models.ErrApprovalAlreadyRecorded, actor)
	}
	if req.IsTerminal() {
		return nil, fmt.Errorf("%w: request is already %s", models.ErrConflict, req.Status)
	}

	next := *req
	next.Approvals = make(map[string]bool, len(req.Approvals)+1)
	maps.Copy(next.Approvals, req.Approvals)
	next.Approvals[actor] = approve
	next.Status = DecideDeletion(next.RequiredApprovers, next.Approvals)
	return &next, nil
}

// Approvers returns the registered participants of list other than requester.
func Approvers(list *models.ExpenseList, requester string) []string {
	out := make([]string, 0, len(list.RegisteredParticipants))
	for _, u := range list.RegisteredParticipants {
		if u != requester {
			out = append(out, u)
		}
	}
	return out
}
