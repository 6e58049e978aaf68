package broadcast

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/tyeom/zeroquant-sub005/internal/metrics"
	"github.com/tyeom/zeroquant-sub005/internal/protocol"
)

// ErrUnicastEvent is returned when a producer tries to publish a per-session
// response on the bus.
var ErrUnicastEvent = errors.New("unicast events cannot be published")

type session struct {
	subscriptions map[protocol.Channel]struct{}
	authenticated bool
	identity      string
}

func (s *session) wants(ev protocol.Event) bool {
	for ch := range s.subscriptions {
		if protocol.Matches(ch, ev) {
			return true
		}
	}
	return false
}

// Registry is the single source of truth for session state: which channels
// each session subscribes to and who it authenticated as. All operations on
// an unknown session ID are no-ops.
type Registry struct {
	bus *Bus

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewRegistry(bus *Bus) *Registry {
	return &Registry{
		bus:      bus,
		sessions: make(map[string]*session),
	}
}

// Bus returns the bus sessions receive from.
func (r *Registry) Bus() *Bus {
	return r.bus
}

// Register creates an empty session record and opens its mailbox.
// Registering an existing ID resets its record.
func (r *Registry) Register(sessionID string) *Mailbox {
	mailbox := r.bus.Subscribe()

	r.mu.Lock()
	r.sessions[sessionID] = &session{subscriptions: make(map[protocol.Channel]struct{})}
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.RegistrySessions.Set(float64(n))
	slog.Debug("Session registered", "session_id", sessionID, "total_sessions", n)
	return mailbox
}

// Unregister removes the session record. The caller owns and closes the mailbox.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.RegistrySessions.Set(float64(n))
	slog.Debug("Session unregistered", "session_id", sessionID, "remaining_sessions", n)
}

// Subscribe adds every recognized channel name to the session and returns
// the accepted names as sent. Unrecognized names are dropped silently.
func (r *Registry) Subscribe(sessionID string, names []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	accepted := []string{}
	s, ok := r.sessions[sessionID]
	if !ok {
		return accepted
	}

	for _, name := range names {
		if ch, ok := protocol.ParseChannel(name); ok {
			s.subscriptions[ch] = struct{}{}
			accepted = append(accepted, name)
		}
	}
	return accepted
}

// Unsubscribe removes every recognized channel name from the session and
// returns the recognized names as sent, whether or not they were subscribed.
func (r *Registry) Unsubscribe(sessionID string, names []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := []string{}
	s, ok := r.sessions[sessionID]
	if !ok {
		return removed
	}

	for _, name := range names {
		if ch, ok := protocol.ParseChannel(name); ok {
			delete(s.subscriptions, ch)
			removed = append(removed, name)
		}
	}
	return removed
}

// Authenticate marks the session as authenticated as identity.
// Repeating it replaces the identity.
func (r *Registry) Authenticate(sessionID, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sessionID]; ok {
		s.authenticated = true
		s.identity = identity
	}
}

// Identity returns the session's identity and whether it authenticated.
// ok is false for unknown sessions.
func (r *Registry) Identity(sessionID string) (identity string, authenticated bool, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return "", false, false
	}
	return s.identity, s.authenticated, true
}

// ShouldDeliver reports whether any of the session's channels match ev.
func (r *Registry) ShouldDeliver(sessionID string, ev protocol.Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	return ok && s.wants(ev)
}

// Channels returns the session's subscribed channel names, sorted.
func (r *Registry) Channels(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := []string{}
	if s, ok := r.sessions[sessionID]; ok {
		for ch := range s.subscriptions {
			names = append(names, ch.String())
		}
	}
	slices.Sort(names)
	return names
}

// SubscriberCount returns how many sessions subscribe to ch.
func (r *Registry) SubscriberCount(ch protocol.Channel) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, s := range r.sessions {
		if _, ok := s.subscriptions[ch]; ok {
			count++
		}
	}
	return count
}

// SessionCount returns the number of registered sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// DemandSnapshot returns the sorted, distinct market symbols any session
// currently subscribes to.
func (r *Registry) DemandSnapshot() []string {
	r.mu.RLock()
	seen := make(map[string]struct{})
	for _, s := range r.sessions {
		for ch := range s.subscriptions {
			if ch.Kind == protocol.ChannelMarket {
				seen[ch.Symbol] = struct{}{}
			}
		}
	}
	r.mu.RUnlock()

	symbols := make([]string, 0, len(seen))
	for symbol := range seen {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)
	return symbols
}

// Publish puts a broadcast event on the bus and returns the number of
// mailboxes it reached. Unicast events are rejected with ErrUnicastEvent.
func (r *Registry) Publish(ev protocol.Event) (int, error) {
	if protocol.IsUnicast(ev) {
		return 0, ErrUnicastEvent
	}

	delivered := r.bus.Publish(ev)
	metrics.BusPublishedTotal.WithLabelValues(string(ev.EventType())).Inc()
	return delivered, nil
}

// Stats is the diagnostic snapshot served by /api/stats.
type Stats struct {
	Sessions      int            `json:"sessions"`
	Authenticated int            `json:"authenticated"`
	Mailboxes     int            `json:"mailboxes"`
	Channels      map[string]int `json:"channels"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Sessions:  len(r.sessions),
		Mailboxes: r.bus.Len(),
		Channels:  make(map[string]int),
	}
	for _, s := range r.sessions {
		if s.authenticated {
			stats.Authenticated++
		}
		for ch := range s.subscriptions {
			stats.Channels[ch.String()]++
		}
	}
	return stats
}
