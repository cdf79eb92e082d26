package realtime

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// sessionBuffer is the number of events a session may fall behind before
// further events are dropped for it. Delivery is best-effort; a client that
// misses pushes reconciles through its next baseline query.
const sessionBuffer = 16

// Session is one connected client bound to an authenticated user.
type Session struct {
	UserID uint64

	events chan Event
	closed bool
}

// Events returns the channel the session's events are delivered on. The
// channel is closed when the session is unregistered or the hub shuts down.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Hub is the process-scoped session registry and event fanout. It is created
// on server start, passed by reference to whoever emits events, and torn down
// on shutdown.
type Hub struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	byUser   map[uint64]map[*Session]struct{}
	closed   bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[*Session]struct{}),
		byUser:   make(map[uint64]map[*Session]struct{}),
	}
}

// Register binds a new session to the given user and joins it to that user's
// private channel. Returns nil if the hub is already shut down.
func (h *Hub) Register(userID uint64) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	s := &Session{
		UserID: userID,
		events: make(chan Event, sessionBuffer),
	}
	h.sessions[s] = struct{}{}
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[*Session]struct{})
	}
	h.byUser[userID][s] = struct{}{}

	log.WithField("user_id", userID).Debug("session registered")
	return s
}

// Unregister removes the session binding. No state is retained for it.
func (h *Hub) Unregister(s *Session) {
	if s == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	if peers := h.byUser[s.UserID]; peers != nil {
		delete(peers, s)
		if len(peers) == 0 {
			delete(h.byUser, s.UserID)
		}
	}
	s.closed = true
	close(s.events)

	log.WithField("user_id", s.UserID).Debug("session unregistered")
}

// Broadcast delivers an event to every connected session.
func (h *Hub) Broadcast(event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.sessions {
		h.send(s, Event{Name: event, Payload: payload})
	}
}

// NotifyUser delivers an event to the sessions of a single user only.
func (h *Hub) NotifyUser(userID uint64, event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.byUser[userID] {
		h.send(s, Event{Name: event, Payload: payload})
	}
}

// send queues an event for one session, dropping it if the session's buffer
// is full so one slow client cannot stall fanout. Callers hold h.mu.
func (h *Hub) send(s *Session, ev Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		log.WithFields(log.Fields{
			"user_id": s.UserID,
			"event":   ev.Name,
		}).Warn("session buffer full, dropping event")
	}
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close tears down every session and rejects further registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for s := range h.sessions {
		s.closed = true
		close(s.events)
		delete(h.sessions, s)
	}
	h.byUser = make(map[uint64]map[*Session]struct{})
}
