package realtime

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/notify"
)

// Client subscribes to a realtime service.
type Client struct {
	subscribe *connect.Client[SubscribeRequest, notify.Event]
}

// NewClient creates a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append(opts, connect.WithCodec(JSONCodec{}))
	return &Client{
		subscribe: connect.NewClient[SubscribeRequest, notify.Event](httpClient, baseURL+SubscribeProcedure, opts...),
	}
}

// Subscribe opens the event stream of one list. A bearer token, when set,
// is sent in the Authorization header.
func (c *Client) Subscribe(ctx context.Context, req *SubscribeRequest, token string) (*connect.ServerStreamForClient[notify.Event], error) {
	r := connect.NewRequest(req)
	if token != "" {
		r.Header().Set("Authorization", "Bearer "+token)
	}
	return c.subscribe.CallServerStream(ctx, r)
}
