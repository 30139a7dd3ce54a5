// Package realtime serves ledger events as a Connect server stream.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/notify"
)

const (
	// ServiceName is the fully-qualified name of the realtime service.
	ServiceName = "splitledger.v1.RealtimeService"
	// SubscribeProcedure is the path of the Subscribe stream.
	SubscribeProcedure = "/" + ServiceName + "/Subscribe"
)

// SubscribeRequest opens the event stream of one list.
type SubscribeRequest struct {
	Username string `json:"username"`
	ListID   string `json:"list_id"`
}

// Snapshotter produces the current debts event for a subscriber, checking
// that the user may see the list.
type Snapshotter interface {
	DebtsSnapshot(ctx context.Context, actor, listID string) (notify.Event, error)
}

// Service streams notifier events to Connect clients.
type Service struct {
	ledger   Snapshotter
	notifier *notify.Notifier
}

// NewService creates a Service.
func NewService(ledger Snapshotter, notifier *notify.Notifier) *Service {
	return &Service{ledger: ledger, notifier: notifier}
}

// NewHandler builds an HTTP handler for the service and returns the path on
// which to mount it.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, connect.WithCodec(JSONCodec{}))
	subscribe := connect.NewServerStreamHandler(SubscribeProcedure, svc.Subscribe, opts...)

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SubscribeProcedure:
			subscribe.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// Subscribe sends the current debts of the list, then every event for the
// caller on that list until the client disconnects.
func (s *Service) Subscribe(ctx context.Context, req *connect.Request[SubscribeRequest], stream *connect.ServerStream[notify.Event]) error {
	actor, err := middleware.ResolveActor(ctx, req.Msg.Username)
	if err != nil {
		return connect.NewError(codeFor(err), err)
	}
	listID := req.Msg.ListID

	sub := s.notifier.Subscribe(actor, listID)
	defer sub.Close()

	snapshot, err := s.ledger.DebtsSnapshot(ctx, actor, listID)
	if err != nil {
		return connect.NewError(codeFor(err), err)
	}
	if err := stream.Send(&snapshot); err != nil {
		return err
	}

	slog.Debug("Stream subscribed", "username", actor, "list_id", listID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := stream.Send(&ev); err != nil {
				return err
			}
		}
	}
}

func codeFor(err error) connect.Code {
	switch {
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrInvalidSplit):
		return connect.CodeInvalidArgument
	case errors.Is(err, models.ErrNotFound):
		return connect.CodeNotFound
	case errors.Is(err, models.ErrForbidden):
		return connect.CodePermissionDenied
	case errors.Is(err, models.ErrConflict),
		errors.Is(err, models.ErrDuplicateRequest),
		errors.Is(err, models.ErrApprovalAlreadyRecorded):
		return connect.CodeAlreadyExists
	case errors.Is(err, models.ErrStorageUnavailable):
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}
