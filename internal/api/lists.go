package api

import (
	"net/http"

	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/service"
)

type createListRequest struct {
	Username string `json:"username"`
	service.ListInput
}

type updateListRequest struct {
	Username string `json:"username"`
	service.ListUpdate
}

type deleteListResponse struct {
	Status  string                  `json:"status"`
	Request *models.DeletionRequest `json:"request,omitempty"`
}

type shareRequest struct {
	Username string `json:"username"`
	ToUser   string `json:"to_user"`
	Message  string `json:"message"`
}

type respondRequest struct {
	Username string `json:"username"`
	Accept   bool   `json:"accept"`
}

type approveRequest struct {
	Username string `json:"username"`
	Approve  bool   `json:"approve"`
}

func (s *Server) handleListLists(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	lists, err := s.Lists.ListForUser(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor, err := middleware.ResolveActor(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.Lists.CreateList(r.Context(), actor, req.ListInput)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.Lists.GetList(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	var req updateListRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor, err := middleware.ResolveActor(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.Lists.UpdateList(r.Context(), actor, r.PathValue("id"), req.ListUpdate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleDeleteList answers 200 when the list is gone and 202 when the other
// members must approve first.
func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.Lists.DeleteList(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if out.Deleted {
		writeJSON(w, http.StatusOK, deleteListResponse{Status: "deleted"})
		return
	}
	writeJSON(w, http.StatusAccepted, deleteListResponse{Status: "pending_approval", Request: out.Request})
}

func (s *Server) handleShareList(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor, err := middleware.ResolveActor(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.Coordinator.CreateShareRequest(r.Context(), actor, r.PathValue("id"), req.ToUser, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListShareRequests(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reqs, err := s.Coordinator.ListShareRequests(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleRespondShareRequest(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor, err := middleware.ResolveActor(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resolved, err := s.Coordinator.RespondShareRequest(r.Context(), actor, r.PathValue("id"), req.Accept)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (s *Server) handleListDeletionRequests(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reqs, err := s.Coordinator.ListDeletionRequests(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleApproveDeletion(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor, err := middleware.ResolveActor(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := s.Coordinator.ApproveDeletion(r.Context(), actor, r.PathValue("id"), req.Approve)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
