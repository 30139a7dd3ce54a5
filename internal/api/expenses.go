package api

import (
	"net/http"

	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/service"
)

type expenseRequest struct {
	Username string `json:"username"`
	service.ExpenseInput
}

type debtView struct {
	models.DebtEdge
	Display string `json:"display"`
}

type debtsResponse struct {
	ListID   string     `json:"list_id"`
	Currency string     `json:"currency"`
	Debts    []debtView `json:"debts"`
}

type balanceView struct {
	models.Balance
	Display string `json:"display"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	expenses, err := s.Ledger.ListExpenses(r.Context(), actor, q.Get("list_id"), q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor, err := middleware.ResolveActor(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	expense, err := s.Ledger.AddExpense(r.Context(), actor, req.ExpenseInput)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor, err := middleware.ResolveActor(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	expense, err := s.Ledger.UpdateExpense(r.Context(), actor, r.PathValue("id"), req.ExpenseInput)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	expense, err := s.Ledger.DeleteExpense(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleRestoreExpense(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	expense, err := s.Ledger.RestoreExpense(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleTrash(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	expenses, err := s.Ledger.ListTrash(r.Context(), actor, r.URL.Query().Get("list_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleDebts(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	listID := r.URL.Query().Get("list_id")
	mine := r.URL.Query().Get("mine") == "true"

	edges, err := s.Ledger.Debts(r.Context(), actor, listID, mine)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.Lists.GetList(r.Context(), actor, listID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := debtsResponse{ListID: listID, Currency: list.Currency, Debts: make([]debtView, 0, len(edges))}
	for _, e := range edges {
		resp.Debts = append(resp.Debts, debtView{DebtEdge: e, Display: money.Display(e.Amount, list.Currency)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	listID := r.URL.Query().Get("list_id")
	balances, err := s.Ledger.Balances(r.Context(), actor, listID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.Lists.GetList(r.Context(), actor, listID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	views := make([]balanceView, 0, len(balances))
	for _, b := range balances {
		views = append(views, balanceView{Balance: b, Display: money.Display(b.NetBalance, list.Currency)})
	}
	writeJSON(w, http.StatusOK, views)
}
