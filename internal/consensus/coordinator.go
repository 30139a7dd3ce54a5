package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mmynk/splitledger/internal/locks"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/storage"
)

var tracer = otel.Tracer("consensus")

// Ledger is the part of the ledger service the coordinator needs after it
// changes list membership.
type Ledger interface {
	// InvalidateDebts drops any cached debt snapshot of listID.
	InvalidateDebts(listID string)
	// PublishDebts recomputes the debts of listID and pushes them to every
	// registered participant.
	PublishDebts(ctx context.Context, listID string)
}

// Coordinator runs the share and deletion request state machines.
//
// Transitions of one request are serialized by a per-request lock; the list
// lock is taken after it, so the lock order is always request then list.
type Coordinator struct {
	store        storage.Store
	notifier     *notify.Notifier
	listLocks    *locks.Keyed
	requestLocks *locks.Keyed
	ledger       Ledger
}

// New creates a Coordinator. listLocks must be shared with every other
// component that mutates lists.
func New(store storage.Store, notifier *notify.Notifier, listLocks *locks.Keyed, ledger Ledger) *Coordinator {
	return &Coordinator{
		store:        store,
		notifier:     notifier,
		listLocks:    listLocks,
		requestLocks: locks.NewKeyed(),
		ledger:       ledger,
	}
}

func finish(span trace.Span, op string, err error) {
	metrics.Mutations.WithLabelValues(op, metrics.Outcome(err)).Inc()
	if err != nil {
		span.RecordError(pkgerrors.Wrap(err, op))
	}
	span.End()
}

// CreateShareRequest invites toUser to join listID on behalf of actor.
func (c *Coordinator) CreateShareRequest(ctx context.Context, actor, listID, toUser, message string) (req *models.ShareRequest, err error) {
	ctx, span := tracer.Start(ctx, "Consensus.CreateShareRequest",
		trace.WithAttributes(attribute.String("list_id", listID)))
	defer func() { finish(span, "share_request", err) }()

	slog.Info("CreateShareRequest request received",
		"list_id", listID,
		"from_user", actor,
		"to_user", toUser,
	)

	toUser = strings.TrimSpace(toUser)
	if toUser == "" {
		return nil, fmt.Errorf("%w: to_user is required", models.ErrInvalidInput)
	}

	unlock := c.listLocks.Lock(listID)
	defer unlock()

	list, err := c.store.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if !list.IsRegisteredParticipant(actor) {
		return nil, fmt.Errorf("%w: %s is not a member of this list", models.ErrForbidden, actor)
	}
	exists, err := c.store.UserExists(ctx, toUser)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.NotFound("user")
	}
	if list.IsRegisteredParticipant(toUser) {
		return nil, fmt.Errorf("%w: %s is already a member of this list", models.ErrConflict, toUser)
	}

	req = &models.ShareRequest{
		ListID:   listID,
		ListName: list.Name,
		FromUser: actor,
		ToUser:   toUser,
		Message:  message,
	}
	if err := c.store.CreateShareRequest(ctx, req); err != nil {
		return nil, err
	}
	c.changelog(ctx, listID, actor, models.ActionShareRequested, "invited "+toUser)

	slog.Info("Share request created", "request_id", req.ID, "list_id", listID)

	c.notifier.Broadcast(ctx, listID, []string{req.FromUser, req.ToUser},
		notify.NewRequestChanged(listID, req.ID, models.RequestKindShare, string(req.Status)))
	return req, nil
}

// ListShareRequests returns the requests sent to or by actor.
func (c *Coordinator) ListShareRequests(ctx context.Context, actor string) ([]models.ShareRequest, error) {
	return c.store.ListShareRequestsForUser(ctx, actor)
}

// RespondShareRequest accepts or rejects a share request as actor.
// Accepting adds actor to the list in the same transaction as the status change.
func (c *Coordinator) RespondShareRequest(ctx context.Context, actor, requestID string, accept bool) (req *models.ShareRequest, err error) {
	ctx, span := tracer.Start(ctx, "Consensus.RespondShareRequest",
		trace.WithAttributes(attribute.String("request_id", requestID)))
	defer func() { finish(span, "share_respond", err) }()

	slog.Info("RespondShareRequest request received",
		"request_id", requestID,
		"username", actor,
		"accept", accept,
	)

	unlockRequest := c.requestLocks.Lock(requestID)
	defer unlockRequest()

	current, err := c.store.GetShareRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	status, err := NextShareStatus(current, actor, accept)
	if err != nil {
		return nil, err
	}

	unlockList := c.listLocks.Lock(current.ListID)
	req, err = c.store.ResolveShareRequest(ctx, requestID, status)
	if err == nil && status == models.ShareAccepted {
		c.ledger.InvalidateDebts(current.ListID)
	}
	unlockList()
	if err != nil {
		return nil, err
	}

	if status == models.ShareAccepted {
		c.changelog(ctx, req.ListID, actor, models.ActionMemberJoined, actor+" joined")
	} else {
		c.changelog(ctx, req.ListID, actor, models.ActionShareRejected, actor+" declined")
	}

	slog.Info("Share request resolved", "request_id", req.ID, "status", req.Status)

	c.notifier.Broadcast(ctx, req.ListID, []string{req.FromUser, req.ToUser},
		notify.NewRequestChanged(req.ListID, req.ID, models.RequestKindShare, string(req.Status)))
	if status == models.ShareAccepted {
		c.ledger.PublishDebts(ctx, req.ListID)
	}
	return req, nil
}

// RequestDeletion opens a deletion request for a shared list. Every other
// registered participant at this moment must approve.
func (c *Coordinator) RequestDeletion(ctx context.Context, actor, listID string) (*models.DeletionRequest, error) {
	unlock := c.listLocks.Lock(listID)
	defer unlock()

	list, err := c.store.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if !list.IsRegisteredParticipant(actor) {
		return nil, fmt.Errorf("%w: %s is not a member of this list", models.ErrForbidden, actor)
	}
	return c.OpenDeletion(ctx, actor, list)
}

// OpenDeletion is RequestDeletion for a caller that already holds the list
// lock and has checked that actor belongs to list.
func (c *Coordinator) OpenDeletion(ctx context.Context, actor string, list *models.ExpenseList) (req *models.DeletionRequest, err error) {
	ctx, span := tracer.Start(ctx, "Consensus.RequestDeletion",
		trace.WithAttributes(attribute.String("list_id", list.ID)))
	defer func() { finish(span, "deletion_request", err) }()

	slog.Info("RequestDeletion request received", "list_id", list.ID, "username", actor)

	approvers := Approvers(list, actor)
	if len(approvers) == 0 {
		return nil, fmt.Errorf("%w: list is not shared", models.ErrConflict)
	}

	req = &models.DeletionRequest{
		ListID:            list.ID,
		ListName:          list.Name,
		RequestedBy:       actor,
		RequiredApprovers: approvers,
	}
	if err := c.store.CreateDeletionRequest(ctx, req); err != nil {
		return nil, err
	}
	c.changelog(ctx, list.ID, actor, models.ActionDeleteRequested, "requested deletion")

	slog.Info("Deletion request created",
		"request_id", req.ID,
		"list_id", list.ID,
		"approvers", len(approvers),
	)

	c.notifier.Broadcast(ctx, list.ID, req.Audience(),
		notify.NewRequestChanged(list.ID, req.ID, models.RequestKindDeletion, string(req.Status)))
	return req, nil
}

// PendingDeletion returns the open deletion request of listID, or nil.
// Callers hold the list lock when they act on the answer.
func PendingDeletion(ctx context.Context, store storage.Store, listID string) (*models.DeletionRequest, error) {
	requests, err := store.ListDeletionRequests(ctx, listID)
	if err != nil {
		return nil, err
	}
	for i := range requests {
		if requests[i].Status == models.DeletionPending {
			return &requests[i], nil
		}
	}
	return nil, nil
}

// ListDeletionRequests returns the deletion requests of listID visible to actor.
// Once a list is gone its requests remain visible to their participants.
func (c *Coordinator) ListDeletionRequests(ctx context.Context, actor, listID string) ([]models.DeletionRequest, error) {
	list, err := c.store.GetList(ctx, listID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		list = nil
	case err != nil:
		return nil, err
	case !list.IsRegisteredParticipant(actor):
		return nil, fmt.Errorf("%w: %s is not a member of this list", models.ErrForbidden, actor)
	}

	requests, err := c.store.ListDeletionRequests(ctx, listID)
	if err != nil {
		return nil, err
	}
	if list != nil {
		return requests, nil
	}

	visible := requests[:0]
	for _, r := range requests {
		if slices.Contains(r.Audience(), actor) {
			visible = append(visible, r)
		}
	}
	if len(visible) == 0 {
		return nil, models.NotFound("list")
	}
	return visible, nil
}

// ApproveDeletion records actor's answer to a deletion request. Unanimous
// approval deletes the list with its expenses, categories and share requests.
func (c *Coordinator) ApproveDeletion(ctx context.Context, actor, requestID string, approve bool) (req *models.DeletionRequest, err error) {
	ctx, span := tracer.Start(ctx, "Consensus.ApproveDeletion",
		trace.WithAttributes(attribute.String("request_id", requestID)))
	defer func() { finish(span, "deletion_approve", err) }()

	slog.Info("ApproveDeletion request received",
		"request_id", requestID,
		"username", actor,
		"approve", approve,
	)

	unlockRequest := c.requestLocks.Lock(requestID)
	defer unlockRequest()

	current, err := c.store.GetDeletionRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	req, err = ApplyDeletionVote(current, actor, approve)
	if err != nil {
		return nil, err
	}

	unlockList := c.listLocks.Lock(req.ListID)
	err = c.store.ApplyDeletionResponse(ctx, req, actor)
	if err == nil && req.Status == models.DeletionApproved {
		c.ledger.InvalidateDebts(req.ListID)
	}
	unlockList()
	if err != nil {
		return nil, err
	}

	if req.Status == models.DeletionRejected {
		c.changelog(ctx, req.ListID, actor, models.ActionDeleteRejected, actor+" declined deletion")
	}

	slog.Info("Deletion response recorded",
		"request_id", req.ID,
		"list_id", req.ListID,
		"status", req.Status,
	)

	c.notifier.Broadcast(ctx, req.ListID, req.Audience(),
		notify.NewRequestChanged(req.ListID, req.ID, models.RequestKindDeletion, string(req.Status)))
	return req, nil
}

func (c *Coordinator) changelog(ctx context.Context, listID, username, action, detail string) {
	entry := &models.ChangelogEntry{ListID: listID, Username: username, Action: action, Detail: detail}
	if err := c.store.AppendChangelog(ctx, entry); err != nil {
		slog.Warn("Failed to append changelog", "list_id", listID, "action", action, "error", err)
	}
}
