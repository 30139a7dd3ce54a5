package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/consensus"
	"github.com/mmynk/splitledger/internal/locks"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/service"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
)

type testServer struct {
	*httptest.Server
	store *sqlite.SQLiteStore
	jwt   *auth.JWTManager
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "api-test-*")
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
	for _, u := range []string{"alice", "bob", "carol"} {
		if err := store.CreateUser(ctx, &models.User{Username: u, PasswordHash: "x"}); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	listLocks := locks.NewKeyed()
	notifier := notify.New()
	ledger := service.NewLedgerService(store, notifier, listLocks, time.Minute)
	coord := consensus.New(store, notifier, listLocks, ledger)
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	srv := New(Deps{
		Store:       store,
		Ledger:      ledger,
		Lists:       service.NewListService(store, listLocks, ledger, coord),
		Coordinator: coord,
		Users:       service.NewAuthService(auth.NewPasswordAuthenticator(store), jwtManager, store, slog.Default()),
		Notifier:    notifier,
	})
	handler := middleware.Authenticate(jwtManager, false)(srv.Handler())

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, store: store, jwt: jwtManager}
}

// do sends a JSON request and decodes the response into out when non-nil.
func (ts *testServer) do(t *testing.T, method, path string, body any, token string, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s %s response: %v", method, path, err)
		}
	}
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected status %d, got %d", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode)
	}
}

// sharedList creates a list owned by alice and brings the given users in
// through accepted share requests.
func (ts *testServer) sharedList(t *testing.T, members ...string) models.ExpenseList {
	t.Helper()

	var list models.ExpenseList
	resp := ts.do(t, http.MethodPost, "/lists", map[string]any{"username": "alice", "name": "Flat"}, "", &list)
	expectStatus(t, resp, http.StatusCreated)

	for _, m := range members {
		var req models.ShareRequest
		resp = ts.do(t, http.MethodPost, "/lists/"+list.ID+"/share", map[string]any{"username": "alice", "to_user": m}, "", &req)
		expectStatus(t, resp, http.StatusCreated)

		resp = ts.do(t, http.MethodPost, "/share-requests/"+req.ID+"/respond", map[string]any{"username": m, "accept": true}, "", nil)
		expectStatus(t, resp, http.StatusOK)
	}
	return list
}

func (ts *testServer) addExpense(t *testing.T, listID, payer, amount string, participants ...string) models.Expense {
	t.Helper()
	ps := make([]string, len(participants))
	for i, p := range participants {
		ps[i] = "registered:" + p
	}
	var e models.Expense
	resp := ts.do(t, http.MethodPost, "/add-expense", map[string]any{
		"username":     payer,
		"list_id":      listID,
		"payer":        map[string]string{"type": "registered", "name": payer},
		"amount":       amount,
		"description":  "dinner",
		"date":         "2026-03-01",
		"participants": ps,
	}, "", &e)
	expectStatus(t, resp, http.StatusCreated)
	return e
}

func TestDebtScenarios(t *testing.T) {
	ts := setupTestServer(t)
	list := ts.sharedList(t, "bob")

	ts.addExpense(t, list.ID, "alice", "1.00", "alice", "bob")

	var debts debtsResponse
	resp := ts.do(t, http.MethodGet, "/calculate-debts?username=alice&list_id="+list.ID, nil, "", &debts)
	expectStatus(t, resp, http.StatusOK)
	if len(debts.Debts) != 1 {
		t.Fatalf("Expected 1 edge, got %+v", debts.Debts)
	}
	want := models.DebtEdge{Debtor: models.Registered("bob"), Creditor: models.Registered("alice"), Amount: 50}
	if debts.Debts[0].DebtEdge != want {
		t.Errorf("Expected %+v, got %+v", want, debts.Debts[0].DebtEdge)
	}

	ts.addExpense(t, list.ID, "bob", "0.40", "alice", "bob")

	resp = ts.do(t, http.MethodGet, "/calculate-debts?username=bob&list_id="+list.ID, nil, "", &debts)
	expectStatus(t, resp, http.StatusOK)
	want.Amount = 30
	if len(debts.Debts) != 1 || debts.Debts[0].DebtEdge != want {
		t.Errorf("Expected [%+v], got %+v", want, debts.Debts)
	}
	if debts.Currency != "EUR" || debts.Debts[0].Display == "" {
		t.Errorf("Expected EUR display, got %+v", debts)
	}

	var balances []balanceView
	resp = ts.do(t, http.MethodGet, "/balances?username=alice&list_id="+list.ID, nil, "", &balances)
	expectStatus(t, resp, http.StatusOK)
	if len(balances) != 2 {
		t.Errorf("Expected 2 balances, got %+v", balances)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	list := ts.sharedList(t, "bob")
	e := ts.addExpense(t, list.ID, "alice", "12.50", "alice", "bob")

	var expenses []models.Expense
	resp := ts.do(t, http.MethodGet, "/expenses?username=bob&list_id="+list.ID, nil, "", &expenses)
	expectStatus(t, resp, http.StatusOK)
	if len(expenses) != 1 || expenses[0].Amount != 1250 {
		t.Fatalf("Expected one 1250 expense, got %+v", expenses)
	}

	var updated models.Expense
	resp = ts.do(t, http.MethodPut, "/update-expense/"+e.ID, map[string]any{
		"username": "bob",
		"list_id":  list.ID,
		"payer":    "registered:bob",
		"amount":   20,
	}, "", &updated)
	expectStatus(t, resp, http.StatusOK)
	if updated.Amount != 2000 || updated.Payer != models.Registered("bob") {
		t.Errorf("Unexpected update %+v", updated)
	}

	resp = ts.do(t, http.MethodDelete, "/delete-expense/"+e.ID+"?username=bob", nil, "", nil)
	expectStatus(t, resp, http.StatusOK)

	var errResp errorResponse
	resp = ts.do(t, http.MethodDelete, "/delete-expense/"+e.ID+"?username=bob", nil, "", &errResp)
	expectStatus(t, resp, http.StatusConflict)
	if errResp.Code != "conflict" {
		t.Errorf("Expected conflict code, got %+v", errResp)
	}

	var trash []models.Expense
	resp = ts.do(t, http.MethodGet, "/trash?username=alice&list_id="+list.ID, nil, "", &trash)
	expectStatus(t, resp, http.StatusOK)
	if len(trash) != 1 || trash[0].DeletedAt == nil {
		t.Errorf("Expected one trashed expense, got %+v", trash)
	}

	resp = ts.do(t, http.MethodPost, "/restore/"+e.ID+"?username=alice", nil, "", nil)
	expectStatus(t, resp, http.StatusOK)

	resp = ts.do(t, http.MethodGet, "/expenses?username=bob&list_id="+list.ID, nil, "", &expenses)
	expectStatus(t, resp, http.StatusOK)
	if len(expenses) != 1 || expenses[0].DeletedAt != nil {
		t.Errorf("Expected restored expense, got %+v", expenses)
	}
}

func TestErrorMapping(t *testing.T) {
	ts := setupTestServer(t)
	list := ts.sharedList(t, "bob")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name:   "participant outside list",
			method: http.MethodPost,
			path:   "/add-expense",
			body: map[string]any{
				"username": "alice", "list_id": list.ID, "payer": "registered:alice",
				"amount": "10", "participants": []string{"registered:alice", "registered:carol"},
			},
			status: http.StatusBadRequest,
			code:   "invalid_split",
		},
		{
			name:   "malformed body",
			method: http.MethodPost,
			path:   "/add-expense",
			body:   "not an object",
			status: http.StatusBadRequest,
			code:   "invalid_input",
		},
		{
			name:   "outsider reads debts",
			method: http.MethodGet,
			path:   "/calculate-debts?username=carol&list_id=" + list.ID,
			status: http.StatusForbidden,
			code:   "forbidden",
		},
		{
			name:   "unknown list",
			method: http.MethodGet,
			path:   "/expenses?username=alice&list_id=missing",
			status: http.StatusNotFound,
			code:   "not_found",
		},
		{
			name:   "missing username",
			method: http.MethodGet,
			path:   "/trash?list_id=" + list.ID,
			status: http.StatusBadRequest,
			code:   "invalid_input",
		},
		{
			name:   "share with member",
			method: http.MethodPost,
			path:   "/lists/" + list.ID + "/share",
			body:   map[string]any{"username": "alice", "to_user": "bob"},
			status: http.StatusConflict,
			code:   "conflict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp errorResponse
			resp := ts.do(t, tt.method, tt.path, tt.body, "", &errResp)
			expectStatus(t, resp, tt.status)
			if errResp.Code != tt.code {
				t.Errorf("Expected code %q, got %+v", tt.code, errResp)
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{models.ErrInvalidSplit, http.StatusBadRequest},
		{models.NotFound("expense"), http.StatusNotFound},
		{models.ErrForbidden, http.StatusForbidden},
		{models.ErrDuplicateRequest, http.StatusConflict},
		{models.ErrApprovalAlreadyRecorded, http.StatusConflict},
		{models.ErrConflict, http.StatusConflict},
		{models.Unavailable("insert expense", fmt.Errorf("disk I/O error")), http.StatusServiceUnavailable},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if status, _ := errorCode(tt.err); status != tt.status {
			t.Errorf("errorCode(%v) = %d, want %d", tt.err, status, tt.status)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/expenses", nil)
	writeError(rec, req, models.Unavailable("list expenses", fmt.Errorf("locked")))
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Expected 503 with Retry-After, got %d %q", rec.Code, rec.Header().Get("Retry-After"))
	}
}

func TestDeleteList(t *testing.T) {
	ts := setupTestServer(t)

	t.Run("solo list is deleted at once", func(t *testing.T) {
		list := ts.sharedList(t)
		var out deleteListResponse
		resp := ts.do(t, http.MethodDelete, "/lists/"+list.ID+"?username=alice", nil, "", &out)
		expectStatus(t, resp, http.StatusOK)
		if out.Status != "deleted" {
			t.Errorf("Expected deleted, got %+v", out)
		}
		resp = ts.do(t, http.MethodGet, "/lists/"+list.ID+"?username=alice", nil, "", nil)
		expectStatus(t, resp, http.StatusNotFound)
	})

	t.Run("shared list is rejected by one approver", func(t *testing.T) {
		list := ts.sharedList(t, "bob", "carol")

		var out deleteListResponse
		resp := ts.do(t, http.MethodDelete, "/lists/"+list.ID+"?username=alice", nil, "", &out)
		expectStatus(t, resp, http.StatusAccepted)
		if out.Status != "pending_approval" || out.Request == nil {
			t.Fatalf("Expected pending approval, got %+v", out)
		}
		reqID := out.Request.ID

		resp = ts.do(t, http.MethodDelete, "/lists/"+list.ID+"?username=bob", nil, "", nil)
		expectStatus(t, resp, http.StatusConflict)

		var dr models.DeletionRequest
		resp = ts.do(t, http.MethodPost, "/deletion-requests/"+reqID+"/approve", map[string]any{"username": "bob", "approve": true}, "", &dr)
		expectStatus(t, resp, http.StatusOK)
		if dr.Status != models.DeletionPending {
			t.Errorf("Expected pending after first approval, got %s", dr.Status)
		}

		resp = ts.do(t, http.MethodPost, "/deletion-requests/"+reqID+"/approve", map[string]any{"username": "carol", "approve": false}, "", &dr)
		expectStatus(t, resp, http.StatusOK)
		if dr.Status != models.DeletionRejected {
			t.Errorf("Expected rejected, got %s", dr.Status)
		}

		for _, u := range []string{"bob", "carol"} {
			var errResp errorResponse
			resp = ts.do(t, http.MethodPost, "/deletion-requests/"+reqID+"/approve", map[string]any{"username": u, "approve": true}, "", &errResp)
			expectStatus(t, resp, http.StatusConflict)
			if errResp.Code != "approval_already_recorded" {
				t.Errorf("Expected approval_already_recorded for %s, got %+v", u, errResp)
			}
		}

		resp = ts.do(t, http.MethodGet, "/lists/"+list.ID+"?username=alice", nil, "", nil)
		expectStatus(t, resp, http.StatusOK)

		var reqs []models.DeletionRequest
		resp = ts.do(t, http.MethodGet, "/lists/"+list.ID+"/deletion-requests?username=carol", nil, "", &reqs)
		expectStatus(t, resp, http.StatusOK)
		if len(reqs) != 1 || reqs[0].Status != models.DeletionRejected {
			t.Errorf("Expected one rejected request, got %+v", reqs)
		}
	})

	t.Run("shared list is deleted once everyone approves", func(t *testing.T) {
		list := ts.sharedList(t, "bob")

		var out deleteListResponse
		resp := ts.do(t, http.MethodDelete, "/lists/"+list.ID+"?username=bob", nil, "", &out)
		expectStatus(t, resp, http.StatusAccepted)

		resp = ts.do(t, http.MethodPost, "/deletion-requests/"+out.Request.ID+"/approve", map[string]any{"username": "alice", "approve": true}, "", nil)
		expectStatus(t, resp, http.StatusOK)

		resp = ts.do(t, http.MethodGet, "/lists/"+list.ID+"?username=alice", nil, "", nil)
		expectStatus(t, resp, http.StatusNotFound)
	})
}

func TestShareRequestDoubleAccept(t *testing.T) {
	ts := setupTestServer(t)

	var list models.ExpenseList
	resp := ts.do(t, http.MethodPost, "/lists", map[string]any{"username": "alice", "name": "Trip", "currency": "usd"}, "", &list)
	expectStatus(t, resp, http.StatusCreated)
	if list.Currency != "USD" {
		t.Errorf("Expected USD, got %q", list.Currency)
	}

	var req models.ShareRequest
	resp = ts.do(t, http.MethodPost, "/lists/"+list.ID+"/share", map[string]any{"username": "alice", "to_user": "bob", "message": "hi"}, "", &req)
	expectStatus(t, resp, http.StatusCreated)

	resp = ts.do(t, http.MethodPost, "/lists/"+list.ID+"/share", map[string]any{"username": "alice", "to_user": "bob"}, "", nil)
	expectStatus(t, resp, http.StatusConflict)

	var pending []models.ShareRequest
	resp = ts.do(t, http.MethodGet, "/share-requests?username=bob", nil, "", &pending)
	expectStatus(t, resp, http.StatusOK)
	if len(pending) != 1 || pending[0].ID != req.ID {
		t.Fatalf("Expected bob's request, got %+v", pending)
	}

	resp = ts.do(t, http.MethodPost, "/share-requests/"+req.ID+"/respond", map[string]any{"username": "carol", "accept": true}, "", nil)
	expectStatus(t, resp, http.StatusForbidden)

	resp = ts.do(t, http.MethodPost, "/share-requests/"+req.ID+"/respond", map[string]any{"username": "bob", "accept": true}, "", nil)
	expectStatus(t, resp, http.StatusOK)
	resp = ts.do(t, http.MethodPost, "/share-requests/"+req.ID+"/respond", map[string]any{"username": "bob", "accept": true}, "", nil)
	expectStatus(t, resp, http.StatusConflict)

	var got models.ExpenseList
	resp = ts.do(t, http.MethodGet, "/lists/"+list.ID+"?username=bob", nil, "", &got)
	expectStatus(t, resp, http.StatusOK)
	if len(got.RegisteredParticipants) != 2 {
		t.Errorf("Expected 2 registered participants, got %v", got.RegisteredParticipants)
	}

	var lists []models.ExpenseList
	resp = ts.do(t, http.MethodGet, "/lists?username=bob", nil, "", &lists)
	expectStatus(t, resp, http.StatusOK)
	if len(lists) != 1 {
		t.Errorf("Expected bob to see 1 list, got %d", len(lists))
	}
}

func TestCategoriesAndChangelog(t *testing.T) {
	ts := setupTestServer(t)
	list := ts.sharedList(t, "bob")

	var c models.Category
	resp := ts.do(t, http.MethodPost, "/categories", map[string]any{"username": "bob", "list_id": list.ID, "name": "Food"}, "", &c)
	expectStatus(t, resp, http.StatusCreated)

	resp = ts.do(t, http.MethodPost, "/categories", map[string]any{"username": "alice", "list_id": list.ID, "name": "Food"}, "", nil)
	expectStatus(t, resp, http.StatusConflict)

	var categories []models.Category
	resp = ts.do(t, http.MethodGet, "/categories?username=alice&list_id="+list.ID, nil, "", &categories)
	expectStatus(t, resp, http.StatusOK)
	if len(categories) != 1 {
		t.Errorf("Expected 1 category, got %+v", categories)
	}

	resp = ts.do(t, http.MethodDelete, "/categories/"+c.ID+"?username=alice", nil, "", nil)
	expectStatus(t, resp, http.StatusNoContent)

	var entries []models.ChangelogEntry
	resp = ts.do(t, http.MethodGet, "/changelog/"+list.ID+"?username=alice&limit=2", nil, "", &entries)
	expectStatus(t, resp, http.StatusOK)
	if len(entries) != 2 || entries[0].Action != models.ActionCategoryRemoved {
		t.Errorf("Unexpected changelog %+v", entries)
	}
}

func TestAuthFlow(t *testing.T) {
	ts := setupTestServer(t)

	var session service.Session
	resp := ts.do(t, http.MethodPost, "/register", map[string]string{"username": "dave", "password": "hunter2hunter2"}, "", &session)
	expectStatus(t, resp, http.StatusCreated)
	if session.Token == "" || session.User.Username != "dave" {
		t.Fatalf("Unexpected session %+v", session)
	}

	resp = ts.do(t, http.MethodPost, "/register", map[string]string{"username": "dave", "password": "hunter2hunter2"}, "", nil)
	expectStatus(t, resp, http.StatusConflict)
	resp = ts.do(t, http.MethodPost, "/register", map[string]string{"username": "erin", "password": "short"}, "", nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp = ts.do(t, http.MethodPost, "/login", map[string]string{"username": "dave", "password": "wrong-password"}, "", nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp = ts.do(t, http.MethodPost, "/login", map[string]string{"username": "dave", "password": "hunter2hunter2"}, "", &session)
	expectStatus(t, resp, http.StatusOK)

	// The token decides the actor.
	var list models.ExpenseList
	resp = ts.do(t, http.MethodPost, "/lists", map[string]any{"name": "Mine"}, session.Token, &list)
	expectStatus(t, resp, http.StatusCreated)
	if list.Owner != "dave" {
		t.Errorf("Expected dave to own the list, got %q", list.Owner)
	}
	resp = ts.do(t, http.MethodGet, "/lists?username=alice", nil, session.Token, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp = ts.do(t, http.MethodGet, "/lists", nil, "garbage", nil)
	expectStatus(t, resp, http.StatusUnauthorized)

	var exists map[string]bool
	resp = ts.do(t, http.MethodGet, "/users/check?username=dave", nil, "", &exists)
	expectStatus(t, resp, http.StatusOK)
	if !exists["exists"] {
		t.Error("Expected dave to exist")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.do(t, http.MethodGet, "/health", nil, "", nil)
	expectStatus(t, resp, http.StatusOK)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "splitledger_http_request_duration_seconds") {
		t.Error("Expected request duration metric to be exported")
	}
}

func TestRealtimeWebSocket(t *testing.T) {
	ts := setupTestServer(t)
	list := ts.sharedList(t, "bob")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realtime?username=bob&list_id=" + list.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev notify.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("Failed to read snapshot: %v", err)
	}
	if ev.Kind != notify.DebtsChanged || len(ev.Debts) != 0 {
		t.Fatalf("Expected empty debts snapshot, got %+v", ev)
	}

	if err := conn.WriteJSON(socketMessage{Type: "h"}); err != nil {
		t.Fatalf("Failed to send heartbeat: %v", err)
	}

	ts.addExpense(t, list.ID, "alice", "8", "alice", "bob")

	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	if ev.Kind != notify.DebtsChanged || len(ev.Debts) != 1 || ev.Debts[0].Amount != 400 {
		t.Errorf("Expected bob to owe 400, got %+v", ev)
	}

	_, resp, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(ts.URL, "http")+"/realtime?username=carol&list_id="+list.ID, nil)
	if err == nil {
		t.Fatal("Expected outsider dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for outsider, got %v", resp)
	}
}
