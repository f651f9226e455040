package nav

import (
	"sync"
	"time"

	"nav-relay-service/internal/domain"
)

// eventBuffer sizes the per-session outbound channel. A client that cannot
// drain this many pending events is considered dead and dropped.
const eventBuffer = 32

// Session is one connected client's navigation context, isolated from all
// others. All mutable fields are guarded by mu; the engine is the only
// writer. Events are delivered through a buffered channel with non-blocking
// sends so a slow consumer never stalls the engine.
type Session struct {
	ID string

	mu          sync.Mutex
	location    *domain.Coordinates
	destination *domain.Destination
	route       *domain.Route
	cursor      int
	lastSpoken  string
	lastRouteAt time.Time

	// generation invalidates in-flight route computations: it is bumped on
	// stop, arrival and every new destination, and stale results are
	// discarded on return.
	generation uint64

	// routePending is true while a recomputation is scheduled or in flight.
	// Duplicate triggers collapse into it; only the latest location counts.
	routePending  bool
	pendingBypass bool

	// routeFailed suppresses repeated RouteUnavailable events: the failure
	// is surfaced once until the next success or new destination.
	routeFailed bool

	closed bool
	events chan Event
}

func newSession(id string) *Session {
	return &Session{
		ID:     id,
		events: make(chan Event, eventBuffer),
	}
}

// Events returns the session's outbound event stream. The channel is closed
// when the session is disconnected or dropped.
func (s *Session) Events() <-chan Event { return s.events }

// notifyLocked pushes an event without blocking. A full buffer marks the
// session dead and closes the stream. Callers must hold s.mu.
func (s *Session) notifyLocked(evt Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- evt:
	default:
		s.closed = true
		close(s.events)
	}
}

// closeLocked ends the event stream. Callers must hold s.mu.
func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// clearLocked resets all navigation state, including the current location
// (the last known position is deliberately not retained across an arrival or
// stop). Callers must hold s.mu.
func (s *Session) clearLocked() {
	s.generation++
	s.location = nil
	s.destination = nil
	s.route = nil
	s.cursor = 0
	s.lastSpoken = ""
	s.routePending = false
	s.pendingBypass = false
	s.routeFailed = false
}
