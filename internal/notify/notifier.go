package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mmynk/splitledger/internal/metrics"
)

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 16

type subKey struct {
	username string
	listID   string
}

// Relay forwards events to other processes.
type Relay interface {
	Forward(ctx context.Context, env Envelope) error
}

// Envelope is an event addressed to a set of users of one list.
type Envelope struct {
	Origin    string   `json:"origin"`
	ListID    string   `json:"list_id"`
	Usernames []string `json:"usernames"`
	Event     Event    `json:"event"`
}

// Notifier fans events out to live subscriptions. Delivery is best-effort and
// never blocks the publisher: an event for a full subscription is dropped.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[subKey]map[*Subscription]struct{}
	buffer int
	relay  Relay
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithBuffer sets the per-subscription buffer size.
func WithBuffer(n int) Option {
	return func(nt *Notifier) {
		if n > 0 {
			nt.buffer = n
		}
	}
}

// WithRelay forwards every published event through r.
func WithRelay(r Relay) Option {
	return func(nt *Notifier) { nt.relay = r }
}

// New creates a Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		subs:   make(map[subKey]map[*Subscription]struct{}),
		buffer: DefaultBuffer,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SetRelay attaches a relay after construction.
func (n *Notifier) SetRelay(r Relay) {
	n.mu.Lock()
	n.relay = r
	n.mu.Unlock()
}

// Subscription receives the events published for one (username, list) pair.
type Subscription struct {
	ch   chan Event
	key  subKey
	n    *Notifier
	once sync.Once
}

// Events returns the channel of delivered events. It is closed by Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close removes the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.n.mu.Lock()
		set := s.n.subs[s.key]
		delete(set, s)
		if len(set) == 0 {
			delete(s.n.subs, s.key)
		}
		close(s.ch)
		s.n.mu.Unlock()
		metrics.RealtimeSubscriptions.Dec()
	})
}

// Subscribe registers a subscription for username on listID.
func (n *Notifier) Subscribe(username, listID string) *Subscription {
	sub := &Subscription{
		ch:  make(chan Event, n.buffer),
		key: subKey{username: username, listID: listID},
		n:   n,
	}

	n.mu.Lock()
	set, ok := n.subs[sub.key]
	if !ok {
		set = make(map[*Subscription]struct{})
		n.subs[sub.key] = set
	}
	set[sub] = struct{}{}
	n.mu.Unlock()

	metrics.RealtimeSubscriptions.Inc()
	return sub
}

// Publish delivers ev to every subscription of username on listID.
func (n *Notifier) Publish(ctx context.Context, listID, username string, ev Event) {
	n.Broadcast(ctx, listID, []string{username}, ev)
}

// Broadcast delivers ev to the subscriptions of every listed user on listID
// and forwards it through the relay when one is configured.
func (n *Notifier) Broadcast(ctx context.Context, listID string, usernames []string, ev Event) {
	n.Deliver(listID, usernames, ev)

	n.mu.RLock()
	relay := n.relay
	n.mu.RUnlock()
	if relay == nil {
		return
	}
	env := Envelope{ListID: listID, Usernames: usernames, Event: ev}
	if err := relay.Forward(ctx, env); err != nil {
		metrics.RealtimeEvents.WithLabelValues(string(ev.Kind), "relay_failed").Inc()
		slog.Warn("Failed to relay event",
			"list_id", listID,
			"kind", ev.Kind,
			"error", err,
		)
	}
}

// Deliver hands ev to local subscriptions only.
func (n *Notifier) Deliver(listID string, usernames []string, ev Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, username := range usernames {
		for sub := range n.subs[subKey{username: username, listID: listID}] {
			select {
			case sub.ch <- ev:
				metrics.RealtimeEvents.WithLabelValues(string(ev.Kind), "delivered").Inc()
			default:
				metrics.RealtimeEvents.WithLabelValues(string(ev.Kind), "dropped").Inc()
				slog.Debug("Dropped event for slow subscriber",
					"list_id", listID,
					"username", username,
					"kind", ev.Kind,
				)
			}
		}
	}
}

// Len returns the number of live subscriptions for username on listID.
func (n *Notifier) Len(username, listID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[subKey{username: username, listID: listID}])
}
