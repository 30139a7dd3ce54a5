package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
)

// CreateShareRequest inserts a pending share request.
func (s *SQLiteStore) CreateShareRequest(ctx context.Context, req *models.ShareRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now()
	}
	req.Status = models.SharePending

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO share_requests (id, list_id, from_user, to_user, message, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.ListID, req.FromUser, req.ToUser, req.Message, string(req.Status), toMillis(req.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s already has a pending invitation", models.ErrDuplicateRequest, req.ToUser)
	}
	if err != nil {
		return models.Unavailable("insert share request", err)
	}
	return nil
}

const shareColumns = `r.id, r.list_id, l.name, r.from_user, r.to_user, r.message, r.status, r.created_at, r.resolved_at`

// GetShareRequest retrieves a share request by ID.
func (s *SQLiteStore) GetShareRequest(ctx context.Context, requestID string) (*models.ShareRequest, error) {
	return getShareRequest(ctx, s.db, requestID)
}

func getShareRequest(ctx context.Context, q queryer, requestID string) (*models.ShareRequest, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+shareColumns+" FROM share_requests r JOIN lists l ON l.id = r.list_id WHERE r.id = ?",
		requestID,
	)
	req, err := scanShareRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("share request")
	}
	if err != nil {
		return nil, models.Unavailable("get share request", err)
	}
	return req, nil
}

// ListShareRequestsForUser returns requests sent to or by username, newest first.
func (s *SQLiteStore) ListShareRequestsForUser(ctx context.Context, username string) ([]models.ShareRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+shareColumns+` FROM share_requests r JOIN lists l ON l.id = r.list_id
		WHERE r.to_user = ? OR r.from_user = ?
		ORDER BY r.created_at DESC, r.id`,
		username, username,
	)
	if err != nil {
		return nil, models.Unavailable("list share requests", err)
	}
	defer rows.Close()

	requests := []models.ShareRequest{}
	for rows.Next() {
		req, err := scanShareRequest(rows)
		if err != nil {
			return nil, models.Unavailable("scan share request", err)
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("iterate share requests", err)
	}
	return requests, nil
}

// ResolveShareRequest moves a pending request to a terminal status. An
// accepted request adds the recipient to the list in the same transaction.
func (s *SQLiteStore) ResolveShareRequest(ctx context.Context, requestID string, status models.ShareStatus) (*models.ShareRequest, error) {
	if status != models.ShareAccepted && status != models.ShareRejected {
		return nil, fmt.Errorf("%w: cannot resolve to %q", models.ErrInvalidInput, status)
	}

	var resolved *models.ShareRequest
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()
		res, err := tx.ExecContext(ctx,
			"UPDATE share_requests SET status = ?, resolved_at = ? WHERE id = ? AND status = ?",
			string(status), toMillis(ts), requestID, string(models.SharePending),
		)
		if err != nil {
			return models.Unavailable("resolve share request", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Either missing or already resolved
			if _, err := getShareRequest(ctx, tx, requestID); err != nil {
				return err
			}
			return fmt.Errorf("%w: share request already resolved", models.ErrConflict)
		}

		req, err := getShareRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}

		if status == models.ShareAccepted {
			_, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO list_members (list_id, kind, name) VALUES (?, ?, ?)",
				req.ListID, models.KindRegistered.String(), req.ToUser,
			)
			if err != nil {
				return models.Unavailable("add list member", err)
			}
		}
		resolved = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func scanShareRequest(row scanner) (*models.ShareRequest, error) {
	req := &models.ShareRequest{}
	var (
		status     string
		createdAt  int64
		resolvedAt sql.NullInt64
	)
	err := row.Scan(&req.ID, &req.ListID, &req.ListName, &req.FromUser, &req.ToUser,
		&req.Message, &status, &createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	req.Status = models.ShareStatus(status)
	req.CreatedAt = fromMillis(createdAt)
	req.ResolvedAt = fromNullMillis(resolvedAt)
	return req, nil
}

// CreateDeletionRequest inserts a pending deletion request with its approver snapshot.
func (s *SQLiteStore) CreateDeletionRequest(ctx context.Context, req *models.DeletionRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now()
	}
	req.Status = models.DeletionPending
	if req.Approvals == nil {
		req.Approvals = map[string]bool{}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO deletion_requests (id, list_id, list_name, requested_by, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			req.ID, req.ListID, req.ListName, req.RequestedBy, string(req.Status), toMillis(req.CreatedAt),
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: list already has a pending deletion request", models.ErrDuplicateRequest)
		}
		if err != nil {
			return models.Unavailable("insert deletion request", err)
		}

		for _, approver := range req.RequiredApprovers {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO deletion_approvers (request_id, username) VALUES (?, ?)",
				req.ID, approver,
			)
			if err != nil {
				return models.Unavailable("insert deletion approver", err)
			}
		}
		return nil
	})
}

const deletionColumns = `id, list_id, list_name, requested_by, status, created_at, resolved_at`

// GetDeletionRequest retrieves a deletion request with its approvers and approvals.
func (s *SQLiteStore) GetDeletionRequest(ctx context.Context, requestID string) (*models.DeletionRequest, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+deletionColumns+" FROM deletion_requests WHERE id = ?",
		requestID,
	)
	req, err := scanDeletionRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("deletion request")
	}
	if err != nil {
		return nil, models.Unavailable("get deletion request", err)
	}
	if err := s.loadDeletionVotes(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ListDeletionRequests returns every deletion request of a list, newest first.
func (s *SQLiteStore) ListDeletionRequests(ctx context.Context, listID string) ([]models.DeletionRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+deletionColumns+" FROM deletion_requests WHERE list_id = ? ORDER BY created_at DESC, id",
		listID,
	)
	if err != nil {
		return nil, models.Unavailable("list deletion requests", err)
	}

	requests := []models.DeletionRequest{}
	for rows.Next() {
		req, err := scanDeletionRequest(rows)
		if err != nil {
			rows.Close()
			return nil, models.Unavailable("scan deletion request", err)
		}
		requests = append(requests, *req)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("iterate deletion requests", err)
	}

	for i := range requests {
		if err := s.loadDeletionVotes(ctx, &requests[i]); err != nil {
			return nil, err
		}
	}
	return requests, nil
}

func (s *SQLiteStore) loadDeletionVotes(ctx context.Context, req *models.DeletionRequest) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT username FROM deletion_approvers WHERE request_id = ? ORDER BY username",
		req.ID,
	)
	if err != nil {
		return models.Unavailable("get deletion approvers", err)
	}
	req.RequiredApprovers = []string{}
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			rows.Close()
			return models.Unavailable("scan deletion approver", err)
		}
		req.RequiredApprovers = append(req.RequiredApprovers, username)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.Unavailable("iterate deletion approvers", err)
	}

	vrows, err := s.db.QueryContext(ctx,
		"SELECT username, approve FROM deletion_approvals WHERE request_id = ?",
		req.ID,
	)
	if err != nil {
		return models.Unavailable("get deletion approvals", err)
	}
	defer vrows.Close()

	req.Approvals = map[string]bool{}
	for vrows.Next() {
		var (
			username string
			approve  bool
		)
		if err := vrows.Scan(&username, &approve); err != nil {
			return models.Unavailable("scan deletion approval", err)
		}
		req.Approvals[username] = approve
	}
	if err := vrows.Err(); err != nil {
		return models.Unavailable("iterate deletion approvals", err)
	}
	return nil
}

// ApplyDeletionResponse records one approver's answer and the resulting
// status. An approved request deletes its list in the same transaction.
func (s *SQLiteStore) ApplyDeletionResponse(ctx context.Context, req *models.DeletionRequest, username string) error {
	approve, ok := req.Approvals[username]
	if !ok {
		return fmt.Errorf("%w: no answer recorded for %s", models.ErrInvalidInput, username)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()
		_, err := tx.ExecContext(ctx,
			"INSERT INTO deletion_approvals (request_id, username, approve, responded_at) VALUES (?, ?, ?, ?)",
			req.ID, username, approve, toMillis(ts),
		)
		if isUniqueViolation(err) {
			return models.ErrApprovalAlreadyRecorded
		}
		if err != nil {
			return models.Unavailable("insert deletion approval", err)
		}

		if !req.IsTerminal() {
			return nil
		}

		res, err := tx.ExecContext(ctx,
			"UPDATE deletion_requests SET status = ?, resolved_at = ? WHERE id = ? AND status = ?",
			string(req.Status), toMillis(ts), req.ID, string(models.DeletionPending),
		)
		if err != nil {
			return models.Unavailable("update deletion request", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: deletion request already decided", models.ErrConflict)
		}
		req.ResolvedAt = &ts

		if req.Status == models.DeletionApproved {
			return deleteList(ctx, tx, req.ListID)
		}
		return nil
	})
}

func scanDeletionRequest(row scanner) (*models.DeletionRequest, error) {
	req := &models.DeletionRequest{}
	var (
		status     string
		createdAt  int64
		resolvedAt sql.NullInt64
	)
	err := row.Scan(&req.ID, &req.ListID, &req.ListName, &req.RequestedBy, &status, &createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	req.Status = models.DeletionStatus(status)
	req.CreatedAt = fromMillis(createdAt)
	req.ResolvedAt = fromNullMillis(resolvedAt)
	return req, nil
}
