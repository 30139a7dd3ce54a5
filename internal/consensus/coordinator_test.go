package consensus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/splitledger/internal/locks"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
)

type recordingLedger struct {
	mu          sync.Mutex
	invalidated []string
	published   []string
}

func (l *recordingLedger) InvalidateDebts(listID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invalidated = append(l.invalidated, listID)
}

func (l *recordingLedger) PublishDebts(ctx context.Context, listID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.published = append(l.published, listID)
}

type fixture struct {
	store    *sqlite.SQLiteStore
	notifier *notify.Notifier
	ledger   *recordingLedger
	coord    *Coordinator
}

func setup(t *testing.T) *fixture {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "consensus-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "carol", "dave"} {
		if err := store.CreateUser(ctx, &models.User{Username: u, PasswordHash: "x"}); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	f := &fixture{store: store, notifier: notify.New(), ledger: &recordingLedger{}}
	f.coord = New(store, f.notifier, locks.NewKeyed(), f.ledger)
	return f
}

func (f *fixture) list(t *testing.T, owner string, members ...string) *models.ExpenseList {
	t.Helper()
	list := &models.ExpenseList{Name: "Trip", Owner: owner, RegisteredParticipants: members}
	if err := f.store.CreateList(context.Background(), list); err != nil {
		t.Fatalf("CreateList failed: %v", err)
	}
	return list
}

func waitEvent(t *testing.T, sub *notify.Subscription) notify.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return notify.Event{}
	}
}

func TestShareRequestFlow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	list := f.list(t, "alice")

	bobEvents := f.notifier.Subscribe("bob", list.ID)
	defer bobEvents.Close()

	t.Run("validation", func(t *testing.T) {
		if _, err := f.coord.CreateShareRequest(ctx, "carol", list.ID, "bob", ""); !errors.Is(err, models.ErrForbidden) {
			t.Errorf("non-member: expected ErrForbidden, got %v", err)
		}
		if _, err := f.coord.CreateShareRequest(ctx, "alice", list.ID, "nobody", ""); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("unknown user: expected ErrNotFound, got %v", err)
		}
		if _, err := f.coord.CreateShareRequest(ctx, "alice", list.ID, "alice", ""); !errors.Is(err, models.ErrConflict) {
			t.Errorf("existing member: expected ErrConflict, got %v", err)
		}
		if _, err := f.coord.CreateShareRequest(ctx, "alice", "missing", "bob", ""); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("unknown list: expected ErrNotFound, got %v", err)
		}
	})

	req, err := f.coord.CreateShareRequest(ctx, "alice", list.ID, "bob", "join us")
	if err != nil {
		t.Fatalf("CreateShareRequest failed: %v", err)
	}
	if ev := waitEvent(t, bobEvents); ev.Kind != notify.RequestChanged || ev.RequestID != req.ID || ev.Status != "pending" {
		t.Errorf("unexpected event: %+v", ev)
	}

	t.Run("duplicate", func(t *testing.T) {
		if _, err := f.coord.CreateShareRequest(ctx, "alice", list.ID, "bob", ""); !errors.Is(err, models.ErrDuplicateRequest) {
			t.Errorf("expected ErrDuplicateRequest, got %v", err)
		}
	})

	t.Run("only recipient responds", func(t *testing.T) {
		if _, err := f.coord.RespondShareRequest(ctx, "alice", req.ID, true); !errors.Is(err, models.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("accept then double submit", func(t *testing.T) {
		resolved, err := f.coord.RespondShareRequest(ctx, "bob", req.ID, true)
		if err != nil {
			t.Fatalf("RespondShareRequest failed: %v", err)
		}
		if resolved.Status != models.ShareAccepted {
			t.Errorf("expected accepted, got %s", resolved.Status)
		}
		if ev := waitEvent(t, bobEvents); ev.Status != "accepted" {
			t.Errorf("unexpected event: %+v", ev)
		}

		if _, err := f.coord.RespondShareRequest(ctx, "bob", req.ID, true); !errors.Is(err, models.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}

		got, _ := f.store.GetList(ctx, list.ID)
		if len(got.RegisteredParticipants) != 2 || !got.IsRegisteredParticipant("bob") {
			t.Errorf("unexpected members: %v", got.RegisteredParticipants)
		}
		if len(f.ledger.published) != 1 || f.ledger.published[0] != list.ID {
			t.Errorf("expected debts to be published once, got %v", f.ledger.published)
		}
	})

	t.Run("reject leaves membership", func(t *testing.T) {
		r, err := f.coord.CreateShareRequest(ctx, "bob", list.ID, "carol", "")
		if err != nil {
			t.Fatalf("CreateShareRequest failed: %v", err)
		}
		if _, err := f.coord.RespondShareRequest(ctx, "carol", r.ID, false); err != nil {
			t.Fatalf("RespondShareRequest failed: %v", err)
		}
		got, _ := f.store.GetList(ctx, list.ID)
		if got.IsRegisteredParticipant("carol") {
			t.Error("rejected user must not join")
		}
		listed, err := f.coord.ListShareRequests(ctx, "carol")
		if err != nil || len(listed) != 1 || listed[0].Status != models.ShareRejected {
			t.Errorf("unexpected requests for carol: %v, %v", listed, err)
		}
	})
}

func TestDeletionRejectedScenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	list := f.list(t, "alice", "bob", "carol")

	req, err := f.coord.RequestDeletion(ctx, "alice", list.ID)
	if err != nil {
		t.Fatalf("RequestDeletion failed: %v", err)
	}
	if len(req.RequiredApprovers) != 2 {
		t.Fatalf("unexpected approvers: %v", req.RequiredApprovers)
	}

	if _, err := f.coord.RequestDeletion(ctx, "bob", list.ID); !errors.Is(err, models.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got %v", err)
	}

	after, err := f.coord.ApproveDeletion(ctx, "bob", req.ID, true)
	if err != nil {
		t.Fatalf("ApproveDeletion failed: %v", err)
	}
	if after.Status != models.DeletionPending {
		t.Errorf("expected pending, got %s", after.Status)
	}

	after, err = f.coord.ApproveDeletion(ctx, "carol", req.ID, false)
	if err != nil {
		t.Fatalf("ApproveDeletion failed: %v", err)
	}
	if after.Status != models.DeletionRejected {
		t.Errorf("expected rejected, got %s", after.Status)
	}

	if _, err := f.store.GetList(ctx, list.ID); err != nil {
		t.Errorf("expected list to survive rejection, got %v", err)
	}

	for _, who := range []string{"bob", "carol"} {
		if _, err := f.coord.ApproveDeletion(ctx, who, req.ID, true); !errors.Is(err, models.ErrApprovalAlreadyRecorded) {
			t.Errorf("%s: expected ErrApprovalAlreadyRecorded, got %v", who, err)
		}
	}
	if _, err := f.coord.ApproveDeletion(ctx, "dave", req.ID, true); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("expected ErrForbidden for non-approver, got %v", err)
	}

	// a new request may be opened once the previous one is decided
	if _, err := f.coord.RequestDeletion(ctx, "bob", list.ID); err != nil {
		t.Errorf("expected new request to be allowed, got %v", err)
	}
}

func TestDeletionApprovedDeletesList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	list := f.list(t, "alice", "bob")

	expense := &models.Expense{
		ListID: list.ID, Payer: models.Registered("alice"), Amount: 100, Currency: "EUR", Date: "2024-01-01",
		Participants: []models.Participant{models.Registered("alice"), models.Registered("bob")},
	}
	if err := f.store.CreateExpense(ctx, expense); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	aliceEvents := f.notifier.Subscribe("alice", list.ID)
	defer aliceEvents.Close()

	req, err := f.coord.RequestDeletion(ctx, "alice", list.ID)
	if err != nil {
		t.Fatalf("RequestDeletion failed: %v", err)
	}
	waitEvent(t, aliceEvents)

	if _, err := f.coord.ApproveDeletion(ctx, "bob", req.ID, true); err != nil {
		t.Fatalf("ApproveDeletion failed: %v", err)
	}
	if ev := waitEvent(t, aliceEvents); ev.Status != string(models.DeletionApproved) {
		t.Errorf("unexpected event: %+v", ev)
	}

	if _, err := f.store.GetList(ctx, list.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected list to be deleted, got %v", err)
	}
	if _, err := f.store.GetExpense(ctx, expense.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected expense to be deleted, got %v", err)
	}

	requests, err := f.coord.ListDeletionRequests(ctx, "bob", list.ID)
	if err != nil {
		t.Fatalf("ListDeletionRequests failed: %v", err)
	}
	if len(requests) != 1 || requests[0].Status != models.DeletionApproved {
		t.Errorf("unexpected requests: %+v", requests)
	}
	if _, err := f.coord.ListDeletionRequests(ctx, "dave", list.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for outsider, got %v", err)
	}
}

func TestConcurrentApprovalsAreSerialized(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	list := f.list(t, "alice", "bob", "carol", "dave")

	req, err := f.coord.RequestDeletion(ctx, "alice", list.ID)
	if err != nil {
		t.Fatalf("RequestDeletion failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for _, who := range []string{"bob", "carol", "dave"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.ApproveDeletion(ctx, who, req.ID, true)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}

	got, err := f.store.GetDeletionRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetDeletionRequest failed: %v", err)
	}
	if got.Status != models.DeletionApproved || len(got.Approvals) != 3 {
		t.Errorf("unexpected request: %+v", got)
	}
}
