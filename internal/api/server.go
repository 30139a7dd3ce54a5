// Package api exposes the ledger over HTTP with JSON bodies.
package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/mmynk/splitledger/internal/consensus"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/notify"
	"github.com/mmynk/splitledger/internal/service"
	"github.com/mmynk/splitledger/internal/storage"
)

// Deps are the components the HTTP handlers call into.
type Deps struct {
	Store       storage.Store
	Ledger      *service.LedgerService
	Lists       *service.ListService
	Coordinator *consensus.Coordinator
	Users       *service.AuthService
	Notifier    *notify.Notifier
	// AllowedOrigin restricts WebSocket origins; "*" or empty allows any.
	AllowedOrigin string
}

// Server holds the HTTP handlers.
type Server struct {
	Deps
	upgrader websocket.Upgrader
}

// New creates a Server.
func New(deps Deps) *Server {
	s := &Server{Deps: deps}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if s.AllowedOrigin == "" || s.AllowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == s.AllowedOrigin
		},
	}
	return s
}

// Register mounts every route on mux.
func (s *Server) Register(mux *http.ServeMux) {
	// Expenses and ledger
	mux.HandleFunc("GET /expenses", s.handleListExpenses)
	mux.HandleFunc("POST /add-expense", s.handleAddExpense)
	mux.HandleFunc("PUT /update-expense/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /delete-expense/{id}", s.handleDeleteExpense)
	mux.HandleFunc("POST /restore/{id}", s.handleRestoreExpense)
	mux.HandleFunc("GET /trash", s.handleTrash)
	mux.HandleFunc("GET /calculate-debts", s.handleDebts)
	mux.HandleFunc("GET /balances", s.handleBalances)

	// Lists
	mux.HandleFunc("GET /lists", s.handleListLists)
	mux.HandleFunc("POST /lists", s.handleCreateList)
	mux.HandleFunc("GET /lists/{id}", s.handleGetList)
	mux.HandleFunc("PUT /lists/{id}", s.handleUpdateList)
	mux.HandleFunc("DELETE /lists/{id}", s.handleDeleteList)

	// Share and deletion requests
	mux.HandleFunc("POST /lists/{id}/share", s.handleShareList)
	mux.HandleFunc("GET /share-requests", s.handleListShareRequests)
	mux.HandleFunc("POST /share-requests/{id}/respond", s.handleRespondShareRequest)
	mux.HandleFunc("GET /lists/{id}/deletion-requests", s.handleListDeletionRequests)
	mux.HandleFunc("POST /deletion-requests/{id}/approve", s.handleApproveDeletion)

	// Categories and changelog
	mux.HandleFunc("GET /categories", s.handleListCategories)
	mux.HandleFunc("POST /categories", s.handleCreateCategory)
	mux.HandleFunc("DELETE /categories/{id}", s.handleDeleteCategory)
	mux.HandleFunc("GET /changelog/{list_id}", s.handleChangelog)

	// Users
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /users/check", s.handleUserExists)

	mux.HandleFunc("GET /realtime", s.handleRealtime)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
}

// Handler returns the routes wrapped with metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return metrics.Middleware(mux)
}

// queryActor resolves the acting user from the "username" query parameter.
func queryActor(r *http.Request) (string, error) {
	return middleware.ResolveActor(r.Context(), r.URL.Query().Get("username"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
