package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

type socketMessage struct {
	Type string `json:"type"`
}

// handleRealtime streams the events of one (user, list) pair over a
// WebSocket. The current debts are sent first.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	actor, err := queryActor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	listID := r.URL.Query().Get("list_id")

	ctx := r.Context()

	// Subscribe before reading the snapshot so no change falls in between.
	sub := s.Notifier.Subscribe(actor, listID)
	defer sub.Close()

	snapshot, err := s.Ledger.DebtsSnapshot(ctx, actor, listID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket", "error", err, "module", "socket")
		return
	}
	defer ws.Close()

	slog.Debug("Socket subscribed", "username", actor, "list_id", listID, "module", "socket")

	quit := make(chan struct{})
	go func() {
		defer close(quit)
		for {
			var msg socketMessage
			if err := ws.ReadJSON(&msg); err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) {
					if closeErr.Code != websocket.CloseNormalClosure && closeErr.Code != websocket.CloseGoingAway {
						slog.Debug("WebSocket closed", "error", closeErr, "module", "socket")
					}
				} else {
					slog.Debug("Error reading message", "error", err, "module", "socket")
				}
				return
			}

			switch msg.Type {
			case "h": // heartbeat
			default:
				slog.Info("Unknown message type", "type", msg.Type, "module", "socket")
			}
		}
	}()

	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(snapshot); err != nil {
		slog.Warn("Error writing message", "error", err, "module", "socket")
		return
	}

	for {
		select {
		case <-quit:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(ev); err != nil {
				slog.Warn("Error writing message", "error", err, "module", "socket")
				return
			}
		}
	}
}
