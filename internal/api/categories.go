package api

import (
	"net/http"

	"github.com/mmynk/splitledger/internal/middleware"
)

type categoryRequest struct {
	Username string `json:"username"`
	ListID   string `json:"list_id"`
	Name     string `json:"name"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	categories, err := s.Ledger.ListCategories(r.Context(), actor, r.URL.Query().Get("list_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor, err := middleware.ResolveActor(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	category, err := s.Ledger.CreateCategory(r.Context(), actor, req.ListID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Ledger.DeleteCategory(r.Context(), actor, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChangelog(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.Ledger.Changelog(r.Context(), actor, r.PathValue("list_id"), parseLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
