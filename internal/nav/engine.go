package nav

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"nav-relay-service/internal/adapters/cache"
	"nav-relay-service/internal/domain"
	"nav-relay-service/internal/guidance"
	"nav-relay-service/internal/ports"
)

// CannotGuide is returned by GetCurrentInstruction when the session has no
// active route or no known location.
const CannotGuide = "경로 안내를 시작할 수 없습니다"

const (
	arrivedMessage = "목적지에 도착했습니다. 경로 안내를 종료합니다"
	routeFailedMsg = "경로를 찾을 수 없습니다"

	ackLocation    = "위치가 업데이트되었습니다"
	ackDestination = "목적지가 설정되었습니다"
	ackStop        = "경로 안내를 종료합니다"
	ackReroute     = "경로를 다시 탐색합니다"
)

// Config carries the thresholds and timing knobs the engine consumes.
type Config struct {
	RerouteThreshold float64       // meters off-route before recomputing
	ArrivalThreshold float64       // meters to destination counted as arrived
	RequestInterval  time.Duration // engine-global route request budget
	RouteTimeout     time.Duration
}

// Engine owns all navigation sessions and drives the route-tracking state
// machine: it consumes destination/location/command events, decides when a
// route must be (re)computed, and pushes localized guidance events back to
// each session.
//
// Events for one session are expected to arrive serially (one connection,
// one read loop); different sessions are handled concurrently without
// coordination. Route computations run in their own goroutines and never
// hold a session lock across a network call.
type Engine struct {
	cfg       Config
	geocoder  ports.Geocoder
	routes    ports.RouteProvider
	cache     *cache.RouteCache
	formatter *guidance.Formatter

	// limiter is engine-global: concurrent sessions contend for the same
	// one-request-per-interval budget toward the routing service.
	limiter *rate.Limiter

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewEngine(
	cfg Config,
	geocoder ports.Geocoder,
	routes ports.RouteProvider,
	routeCache *cache.RouteCache,
	formatter *guidance.Formatter,
) *Engine {
	if cfg.RerouteThreshold <= 0 {
		cfg.RerouteThreshold = 10
	}
	if cfg.ArrivalThreshold <= 0 {
		cfg.ArrivalThreshold = 20
	}
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = time.Second
	}
	if cfg.RouteTimeout <= 0 {
		cfg.RouteTimeout = 10 * time.Second
	}
	if formatter == nil {
		formatter = guidance.NewFormatter(nil)
	}

	return &Engine{
		cfg:       cfg,
		geocoder:  geocoder,
		routes:    routes,
		cache:     routeCache,
		formatter: formatter,
		limiter:   rate.NewLimiter(rate.Every(cfg.RequestInterval), 1),
		sessions:  make(map[string]*Session),
	}
}

// Connect registers a new session and returns it. The caller owns draining
// Events() and must call Disconnect when the client goes away.
func (e *Engine) Connect() *Session {
	s := newSession(uuid.NewString())

	e.mu.Lock()
	e.sessions[s.ID] = s
	n := len(e.sessions)
	e.mu.Unlock()

	log.Printf("session=%s op=connect sessions=%d", s.ID, n)
	return s
}

// Disconnect destroys a session and closes its event stream. Unknown IDs are
// ignored.
func (e *Engine) Disconnect(sessionID string) {
	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	delete(e.sessions, sessionID)
	n := len(e.sessions)
	e.mu.Unlock()

	if !ok {
		return
	}

	s.mu.Lock()
	s.generation++
	s.closeLocked()
	s.mu.Unlock()

	log.Printf("session=%s op=disconnect sessions=%d", sessionID, n)
}

func (e *Engine) session(sessionID string) (*Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// SetDestination resolves and stores the session's destination. Free-text
// addresses go through the geocoder; coordinates are validated and used
// directly. If the current location is already known, route computation is
// triggered.
func (e *Engine) SetDestination(ctx context.Context, sessionID string, req domain.DestinationRequest) (string, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return "", err
	}

	var dest domain.Destination
	if c, ok := req.Coords(); ok {
		if !c.Valid() {
			return "", fmt.Errorf("%w: lat=%v lon=%v", domain.ErrInvalidCoordinate, c.Lat, c.Lon)
		}
		dest = domain.Destination{Coords: c}
	} else {
		// Geocoding is network-bound; it runs before the session lock is
		// taken so other events are never stalled behind it.
		resolved, err := e.geocoder.Geocode(ctx, req.Address())
		if err != nil {
			return "", err
		}
		if !resolved.Coords.Valid() {
			return "", fmt.Errorf("%w: geocoder returned lat=%v lon=%v",
				domain.ErrInvalidCoordinate, resolved.Coords.Lat, resolved.Coords.Lon)
		}
		dest = resolved
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.destination = &dest
	s.route = nil
	s.cursor = 0
	s.lastSpoken = ""
	s.routePending = false
	s.pendingBypass = false
	s.routeFailed = false

	if s.location != nil {
		e.requestRouteLocked(s, false)
		e.emitAfterUpdateLocked(s)
	}

	return ackDestination, nil
}

// UpdateLocation records the session's position, then evaluates the reroute
// decision and the arrival decision, in that order. At most one guidance
// event is emitted per update.
func (e *Engine) UpdateLocation(_ context.Context, sessionID string, coords domain.Coordinates) (string, error) {
	if !coords.Valid() {
		return "", fmt.Errorf("%w: lat=%v lon=%v", domain.ErrInvalidCoordinate, coords.Lat, coords.Lon)
	}

	s, err := e.session(sessionID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.location = &coords
	if s.destination == nil {
		return ackLocation, nil
	}

	if e.offRouteLocked(s) {
		e.requestRouteLocked(s, false)
	}
	e.emitAfterUpdateLocked(s)

	return ackLocation, nil
}

// HandleCommand applies a client command. "stop" clears the session
// unconditionally; "reroute" forces a recomputation that bypasses the route
// cache.
func (e *Engine) HandleCommand(_ context.Context, sessionID, command string) (string, error) {
	s, err := e.session(sessionID)
	if err != nil {
		return "", err
	}

	switch command {
	case "stop", "stop_navigation":
		s.mu.Lock()
		s.clearLocked()
		s.mu.Unlock()
		return ackStop, nil

	case "reroute":
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.destination == nil || s.location == nil {
			return "", errors.New("reroute requires a destination and a known location")
		}
		e.requestRouteLocked(s, true)
		return ackReroute, nil

	default:
		return "", fmt.Errorf("unknown command %q", command)
	}
}

// GetCurrentInstruction derives the instruction for the session's current
// position from existing state. It recomputes nothing and mutates nothing;
// without an active route and location it returns the CannotGuide sentinel.
func (e *Engine) GetCurrentInstruction(sessionID string) string {
	s, err := e.session(sessionID)
	if err != nil {
		return CannotGuide
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := e.currentStepLocked(s)
	if idx < 0 {
		return CannotGuide
	}
	if idx >= len(s.route.Steps)-1 {
		return arrivedMessage
	}

	next := s.route.Steps[idx+1]
	return e.formatter.Instruction(next.Type, next.Modifier, s.route.Steps[idx].Meters, s.route.RemainingMeters(idx))
}

// offRouteLocked implements the reroute decision: recompute when no route is
// active or the perpendicular distance to the nearest route segment exceeds
// the threshold.
func (e *Engine) offRouteLocked(s *Session) bool {
	if s.route == nil {
		return true
	}
	return domain.DistanceToPath(*s.location, s.route.Geometry) > e.cfg.RerouteThreshold
}

// requestRouteLocked triggers exactly one recomputation for the session. A
// pending request collapses duplicate triggers; the location is re-read when
// the deferred request fires, so only the latest position counts. When a
// cached route can serve the pair it is installed without spending limiter
// budget.
func (e *Engine) requestRouteLocked(s *Session, bypassCache bool) {
	if s.routePending {
		if bypassCache {
			s.pendingBypass = true
		}
		return
	}

	if !bypassCache && s.location != nil && s.destination != nil && e.cache != nil {
		if r, ok := e.cache.Get(*s.location, s.destination.Coords); ok {
			s.route = r
			s.cursor = 0
			s.lastSpoken = ""
			s.routeFailed = false
			s.lastRouteAt = time.Now()
			return
		}
	}

	s.routePending = true
	s.pendingBypass = bypassCache

	// Reserve the engine-global budget up front: when the interval has not
	// elapsed the request is deferred to the next eligible slot, not dropped.
	gen := s.generation
	delay := e.limiter.Reserve().Delay()
	time.AfterFunc(delay, func() { e.computeRoute(s, gen) })
}

// computeRoute performs the actual route fetch for a previously scheduled
// recomputation. Results belonging to a superseded generation (stop, new
// destination, arrival) are discarded.
func (e *Engine) computeRoute(s *Session, gen uint64) {
	s.mu.Lock()
	if s.generation != gen || !s.routePending {
		s.mu.Unlock()
		return
	}
	if s.location == nil || s.destination == nil {
		s.routePending = false
		s.pendingBypass = false
		s.mu.Unlock()
		return
	}
	origin := *s.location
	target := s.destination.Coords
	bypass := s.pendingBypass
	s.mu.Unlock()

	if !bypass && e.cache != nil {
		if r, ok := e.cache.Get(origin, target); ok {
			e.applyRoute(s, gen, r)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RouteTimeout)
	defer cancel()

	route, err := e.routes.GetRoute(ctx, origin, target)
	if err != nil {
		log.Printf("session=%s op=route origin=%v,%v err=%v", s.ID, origin.Lat, origin.Lon, err)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation != gen {
			return
		}
		s.routePending = false
		s.pendingBypass = false
		// Surface the failure once, not on every tick; the previous route,
		// if any, keeps serving guidance.
		if !s.routeFailed {
			s.routeFailed = true
			s.notifyLocked(Event{Type: EventError, Message: routeFailedMsg})
		}
		return
	}

	if e.cache != nil {
		e.cache.Put(origin, target, route)
	}
	e.applyRoute(s, gen, route)
}

func (e *Engine) applyRoute(s *Session, gen uint64, route *domain.Route) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A late result after stop/new-destination is discarded.
	if s.generation != gen || !s.routePending {
		return
	}

	s.route = route
	s.cursor = 0
	s.lastSpoken = ""
	s.routePending = false
	s.pendingBypass = false
	s.routeFailed = false
	s.lastRouteAt = time.Now()

	e.emitAfterUpdateLocked(s)
}

// emitAfterUpdateLocked runs the arrival decision and, when not arrived,
// emits at most one guidance event from the active route.
func (e *Engine) emitAfterUpdateLocked(s *Session) {
	if s.location == nil || s.destination == nil {
		return
	}

	if domain.Haversine(*s.location, s.destination.Coords) <= e.cfg.ArrivalThreshold {
		s.notifyLocked(Event{Type: EventNavigationEnd, Message: arrivedMessage})
		s.clearLocked()
		return
	}

	if s.route != nil && !s.routePending {
		e.emitGuidanceLocked(s)
	}
}

// emitGuidanceLocked advances the instruction cursor and emits the
// instruction for the transition to the next step. Reaching the last step is
// treated as arrival. Unchanged instructions are not repeated.
func (e *Engine) emitGuidanceLocked(s *Session) {
	idx := e.currentStepLocked(s)
	if idx < 0 {
		return
	}

	if idx >= len(s.route.Steps)-1 {
		s.notifyLocked(Event{Type: EventNavigationEnd, Message: arrivedMessage})
		s.clearLocked()
		return
	}

	s.cursor = idx
	next := s.route.Steps[idx+1]
	msg := e.formatter.Instruction(next.Type, next.Modifier, s.route.Steps[idx].Meters, s.route.RemainingMeters(idx))
	if msg == s.lastSpoken {
		return
	}

	s.lastSpoken = msg
	s.notifyLocked(Event{Type: EventVoiceGuidance, Message: msg})
}

// currentStepLocked finds the step whose maneuver point is nearest to the
// current location. The cursor never moves backwards on an unchanged route.
func (e *Engine) currentStepLocked(s *Session) int {
	if s.route == nil || s.location == nil || len(s.route.Steps) == 0 {
		return -1
	}

	best := -1
	bestDist := math.Inf(1)
	for i, step := range s.route.Steps {
		d := domain.Haversine(*s.location, step.Location)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}

	if best < s.cursor {
		best = s.cursor
	}
	return best
}
