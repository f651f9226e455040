package nav

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nav-relay-service/internal/adapters/cache"
	"nav-relay-service/internal/domain"
)

// Route fixture around Daeyeon station in Busan: depart, one right turn,
// arrive. Distances between the points are a few hundred meters.
var (
	fixtureOrigin = domain.Coordinates{Lon: 129.0890, Lat: 35.1330}
	fixtureTurn   = domain.Coordinates{Lon: 129.0905, Lat: 35.1341}
	fixtureDest   = domain.Coordinates{Lon: 129.091565, Lat: 35.1349964}

	// A few meters beside the turn point, still within the reroute threshold.
	nearTurn = domain.Coordinates{Lon: 129.0905, Lat: 35.13415}
	// Well past the reroute threshold, roughly 25m off the path.
	offPath = domain.Coordinates{Lon: 129.0905, Lat: 35.1344}
)

func fixtureRoute() *domain.Route {
	return &domain.Route{
		Steps: []domain.RouteStep{
			{Type: "depart", Meters: 200, Location: fixtureOrigin},
			{Type: "turn", Modifier: "right", Meters: 150, Location: fixtureTurn},
			{Type: "arrive", Meters: 0, Location: fixtureDest},
		},
		Meters:   350,
		Seconds:  80,
		Geometry: []domain.Coordinates{fixtureOrigin, fixtureTurn, fixtureDest},
	}
}

type stubGeocoder struct {
	dest  domain.Destination
	err   error
	calls atomic.Int32
}

func (g *stubGeocoder) Geocode(_ context.Context, _ string) (domain.Destination, error) {
	g.calls.Add(1)
	if g.err != nil {
		return domain.Destination{}, g.err
	}
	return g.dest, nil
}

type stubRouteProvider struct {
	mu         sync.Mutex
	route      *domain.Route
	err        error
	lastOrigin domain.Coordinates
	calls      atomic.Int32
	block      chan struct{} // when non-nil, GetRoute waits on it
}

func (p *stubRouteProvider) GetRoute(_ context.Context, origin, _ domain.Coordinates) (*domain.Route, error) {
	p.mu.Lock()
	p.lastOrigin = origin
	p.mu.Unlock()

	p.calls.Add(1)
	if p.block != nil {
		<-p.block
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.route, nil
}

func (p *stubRouteProvider) origin() domain.Coordinates {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOrigin
}

func newTestEngine(geocoder *stubGeocoder, routes *stubRouteProvider, routeCache *cache.RouteCache) *Engine {
	return NewEngine(Config{
		RerouteThreshold: 10,
		ArrivalThreshold: 20,
		RequestInterval:  time.Millisecond,
		RouteTimeout:     time.Second,
	}, geocoder, routes, routeCache, nil)
}

// waitEvent drains the session stream until an event of the wanted type
// arrives, failing the test on timeout or a closed stream.
func waitEvent(t *testing.T, s *Session, want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-s.Events():
			if !ok {
				t.Fatalf("event stream closed while waiting for %q", want)
			}
			if evt.Type == want {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %q", want)
		}
	}
}

// expectNoEvent asserts the session stream stays quiet for the given window.
func expectNoEvent(t *testing.T, s *Session, window time.Duration) {
	t.Helper()
	select {
	case evt, ok := <-s.Events():
		if ok {
			t.Fatalf("unexpected event %+v", evt)
		}
		t.Fatal("event stream closed unexpectedly")
	case <-time.After(window):
	}
}

func waitForCalls(t *testing.T, count *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if count.Load() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("calls = %d, want %d", count.Load(), want)
}

func TestNavigationScenario(t *testing.T) {
	geocoder := &stubGeocoder{dest: domain.Destination{Coords: fixtureDest, Address: "대연역"}}
	routes := &stubRouteProvider{route: fixtureRoute()}
	e := newTestEngine(geocoder, routes, nil)

	s := e.Connect()
	defer e.Disconnect(s.ID)
	ctx := context.Background()

	// Destination by address goes through the geocoder. Without a location
	// no route is requested yet.
	ack, err := e.SetDestination(ctx, s.ID, domain.AddressDestination("대연역"))
	if err != nil {
		t.Fatalf("SetDestination: %v", err)
	}
	if ack != ackDestination {
		t.Errorf("ack = %q", ack)
	}
	if geocoder.calls.Load() != 1 {
		t.Errorf("geocoder calls = %d, want 1", geocoder.calls.Load())
	}
	if routes.calls.Load() != 0 {
		t.Errorf("route requested before any location, calls = %d", routes.calls.Load())
	}

	// First location triggers the route fetch and the first instruction.
	ack, err = e.UpdateLocation(ctx, s.ID, fixtureOrigin)
	if err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	if ack != ackLocation {
		t.Errorf("ack = %q", ack)
	}

	evt := waitEvent(t, s, EventVoiceGuidance)
	if !strings.Contains(evt.Message, "우회전") {
		t.Errorf("first instruction = %q, want right-turn phrase", evt.Message)
	}
	if !strings.Contains(evt.Message, "200m") {
		t.Errorf("first instruction = %q, want distance to turn", evt.Message)
	}

	// Approaching the turn advances the instruction to the arrival step.
	if _, err := e.UpdateLocation(ctx, s.ID, nearTurn); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	evt = waitEvent(t, s, EventVoiceGuidance)
	if !strings.Contains(evt.Message, "도착") {
		t.Errorf("second instruction = %q, want arrival phrase", evt.Message)
	}

	// An unchanged position repeats the same instruction and is suppressed.
	if _, err := e.UpdateLocation(ctx, s.ID, nearTurn); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	expectNoEvent(t, s, 100*time.Millisecond)

	if got := routes.calls.Load(); got != 1 {
		t.Errorf("on-path updates recomputed the route, calls = %d", got)
	}

	// Reaching the destination ends navigation.
	if _, err := e.UpdateLocation(ctx, s.ID, fixtureDest); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	evt = waitEvent(t, s, EventNavigationEnd)
	if evt.Message != arrivedMessage {
		t.Errorf("end message = %q", evt.Message)
	}

	// Arrival clears the whole session including the last known location:
	// a fresh destination must not trigger a route fetch until the client
	// reports a position again.
	if _, err := e.SetDestination(ctx, s.ID, domain.CoordinateDestination(fixtureDest)); err != nil {
		t.Fatalf("SetDestination after arrival: %v", err)
	}
	expectNoEvent(t, s, 100*time.Millisecond)
	if got := routes.calls.Load(); got != 1 {
		t.Errorf("route fetched without a location after arrival, calls = %d", got)
	}
	if got := e.GetCurrentInstruction(s.ID); got != CannotGuide {
		t.Errorf("instruction after arrival = %q, want cannot-guide sentinel", got)
	}
}

func TestRerouteOnDeviation(t *testing.T) {
	routes := &stubRouteProvider{route: fixtureRoute()}
	e := newTestEngine(&stubGeocoder{}, routes, nil)

	s := e.Connect()
	defer e.Disconnect(s.ID)
	ctx := context.Background()

	if _, err := e.SetDestination(ctx, s.ID, domain.CoordinateDestination(fixtureDest)); err != nil {
		t.Fatalf("SetDestination: %v", err)
	}
	if _, err := e.UpdateLocation(ctx, s.ID, fixtureOrigin); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	waitEvent(t, s, EventVoiceGuidance)

	// A small drift stays within the threshold: no recomputation.
	if _, err := e.UpdateLocation(ctx, s.ID, nearTurn); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := routes.calls.Load(); got != 1 {
		t.Fatalf("within-threshold drift recomputed the route, calls = %d", got)
	}

	// Leaving the path beyond the threshold forces a recomputation.
	if _, err := e.UpdateLocation(ctx, s.ID, offPath); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	waitForCalls(t, &routes.calls, 2)

	if got := routes.origin(); got != offPath {
		t.Errorf("recomputation origin = %+v, want the deviated position %+v", got, offPath)
	}
}

func TestDebounceCollapsesBursts(t *testing.T) {
	routes := &stubRouteProvider{route: fixtureRoute()}
	e := NewEngine(Config{
		RerouteThreshold: 10,
		ArrivalThreshold: 20,
		RequestInterval:  50 * time.Millisecond,
		RouteTimeout:     time.Second,
	}, &stubGeocoder{}, routes, nil, nil)

	s := e.Connect()
	defer e.Disconnect(s.ID)
	ctx := context.Background()

	if _, err := e.SetDestination(ctx, s.ID, domain.CoordinateDestination(fixtureDest)); err != nil {
		t.Fatalf("SetDestination: %v", err)
	}
	if _, err := e.UpdateLocation(ctx, s.ID, fixtureOrigin); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	waitEvent(t, s, EventVoiceGuidance)

	// A burst of off-path updates inside one interval collapses into a
	// single deferred recomputation using the latest position.
	positions := []domain.Coordinates{
		{Lon: 129.0905, Lat: 35.1344},
		{Lon: 129.0906, Lat: 35.1344},
		{Lon: 129.0907, Lat: 35.1345},
	}
	for _, p := range positions {
		if _, err := e.UpdateLocation(ctx, s.ID, p); err != nil {
			t.Fatalf("UpdateLocation: %v", err)
		}
	}

	waitForCalls(t, &routes.calls, 2)
	time.Sleep(120 * time.Millisecond)
	if got := routes.calls.Load(); got != 2 {
		t.Errorf("burst produced %d recomputations, want 2 total fetches", got)
	}
	if got := routes.origin(); got != positions[len(positions)-1] {
		t.Errorf("deferred fetch origin = %+v, want latest position", got)
	}
}

func TestStopDiscardsLateRouteResult(t *testing.T) {
	routes := &stubRouteProvider{route: fixtureRoute(), block: make(chan struct{})}
	e := newTestEngine(&stubGeocoder{}, routes, nil)

	s := e.Connect()
	defer e.Disconnect(s.ID)
	ctx := context.Background()

	if _, err := e.SetDestination(ctx, s.ID, domain.CoordinateDestination(fixtureDest)); err != nil {
		t.Fatalf("SetDestination: %v", err)
	}
	if _, err := e.UpdateLocation(ctx, s.ID, fixtureOrigin); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	waitForCalls(t, &routes.calls, 1)

	ack, err := e.HandleCommand(ctx, s.ID, "stop")
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if ack != ackStop {
		t.Errorf("ack = %q", ack)
	}

	// The in-flight fetch completes after the stop; its result must be
	// discarded without any guidance.
	close(routes.block)
	expectNoEvent(t, s, 150*time.Millisecond)

	if got := e.GetCurrentInstruction(s.ID); got != CannotGuide {
		t.Errorf("instruction after stop = %q, want cannot-guide sentinel", got)
	}
}

func TestRouteFailureSurfacedOnce(t *testing.T) {
	routes := &stubRouteProvider{err: domain.ErrRouteUnavailable}
	e := newTestEngine(&stubGeocoder{}, routes, nil)

	s := e.Connect()
	defer e.Disconnect(s.ID)
	ctx := context.Background()

	if _, err := e.SetDestination(ctx, s.ID, domain.CoordinateDestination(fixtureDest)); err != nil {
		t.Fatalf("SetDestination: %v", err)
	}
	if _, err := e.UpdateLocation(ctx, s.ID, fixtureOrigin); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}

	evt := waitEvent(t, s, EventError)
	if evt.Message != routeFailedMsg {
		t.Errorf("error message = %q", evt.Message)
	}

	// Repeated failing recomputations stay silent until something changes.
	if _, err := e.UpdateLocation(ctx, s.ID, offPath); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	waitForCalls(t, &routes.calls, 2)
	expectNoEvent(t, s, 100*time.Millisecond)
}

func TestRerouteCommandBypassesCache(t *testing.T) {
	routes := &stubRouteProvider{route: fixtureRoute()}
	e := newTestEngine(&stubGeocoder{}, routes, cache.NewRouteCache(16, time.Minute))

	s := e.Connect()
	defer e.Disconnect(s.ID)
	ctx := context.Background()

	// Reroute needs both a destination and a position.
	if _, err := e.HandleCommand(ctx, s.ID, "reroute"); err == nil {
		t.Fatal("reroute without state should fail")
	}

	if _, err := e.SetDestination(ctx, s.ID, domain.CoordinateDestination(fixtureDest)); err != nil {
		t.Fatalf("SetDestination: %v", err)
	}
	if _, err := e.UpdateLocation(ctx, s.ID, fixtureOrigin); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	waitEvent(t, s, EventVoiceGuidance)
	if got := routes.calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}

	// The result for this pair is cached now; an explicit reroute still
	// goes to the provider.
	ack, err := e.HandleCommand(ctx, s.ID, "reroute")
	if err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if ack != ackReroute {
		t.Errorf("ack = %q", ack)
	}
	waitForCalls(t, &routes.calls, 2)
}

func TestRouteCacheServesRepeatPair(t *testing.T) {
	routes := &stubRouteProvider{route: fixtureRoute()}
	e := newTestEngine(&stubGeocoder{}, routes, cache.NewRouteCache(16, time.Minute))

	s := e.Connect()
	defer e.Disconnect(s.ID)
	ctx := context.Background()

	if _, err := e.SetDestination(ctx, s.ID, domain.CoordinateDestination(fixtureDest)); err != nil {
		t.Fatalf("SetDestination: %v", err)
	}
	if _, err := e.UpdateLocation(ctx, s.ID, fixtureOrigin); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	waitEvent(t, s, EventVoiceGuidance)

	// Stop, then navigate the identical pair again: the cached route is
	// installed without another fetch.
	if _, err := e.HandleCommand(ctx, s.ID, "stop"); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if _, err := e.SetDestination(ctx, s.ID, domain.CoordinateDestination(fixtureDest)); err != nil {
		t.Fatalf("SetDestination: %v", err)
	}
	if _, err := e.UpdateLocation(ctx, s.ID, fixtureOrigin); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}

	waitEvent(t, s, EventVoiceGuidance)
	if got := routes.calls.Load(); got != 1 {
		t.Errorf("repeat pair went to the provider, calls = %d", got)
	}
}

func TestInvalidCoordinatesRejected(t *testing.T) {
	e := newTestEngine(&stubGeocoder{}, &stubRouteProvider{route: fixtureRoute()}, nil)
	s := e.Connect()
	defer e.Disconnect(s.ID)
	ctx := context.Background()

	_, err := e.UpdateLocation(ctx, s.ID, domain.Coordinates{Lon: 129.0, Lat: 95.0})
	if !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Errorf("location err = %v, want ErrInvalidCoordinate", err)
	}

	_, err = e.SetDestination(ctx, s.ID, domain.CoordinateDestination(domain.Coordinates{Lon: 200.0, Lat: 35.0}))
	if !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Errorf("destination err = %v, want ErrInvalidCoordinate", err)
	}
}

func TestGeocodeFailurePropagates(t *testing.T) {
	geocoder := &stubGeocoder{err: domain.ErrGeocodeNotFound}
	e := newTestEngine(geocoder, &stubRouteProvider{}, nil)
	s := e.Connect()
	defer e.Disconnect(s.ID)

	_, err := e.SetDestination(context.Background(), s.ID, domain.AddressDestination("없는 곳"))
	if !errors.Is(err, domain.ErrGeocodeNotFound) {
		t.Errorf("err = %v, want ErrGeocodeNotFound", err)
	}
}

func TestUnknownSession(t *testing.T) {
	e := newTestEngine(&stubGeocoder{}, &stubRouteProvider{}, nil)
	ctx := context.Background()

	if _, err := e.UpdateLocation(ctx, "nope", fixtureOrigin); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("UpdateLocation err = %v, want ErrSessionNotFound", err)
	}
	if _, err := e.SetDestination(ctx, "nope", domain.CoordinateDestination(fixtureDest)); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("SetDestination err = %v, want ErrSessionNotFound", err)
	}
	if _, err := e.HandleCommand(ctx, "nope", "stop"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("HandleCommand err = %v, want ErrSessionNotFound", err)
	}
	if got := e.GetCurrentInstruction("nope"); got != CannotGuide {
		t.Errorf("instruction = %q, want cannot-guide sentinel", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	e := newTestEngine(&stubGeocoder{}, &stubRouteProvider{}, nil)
	s := e.Connect()
	defer e.Disconnect(s.ID)

	if _, err := e.HandleCommand(context.Background(), s.ID, "fly"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestGetCurrentInstruction(t *testing.T) {
	routes := &stubRouteProvider{route: fixtureRoute()}
	e := newTestEngine(&stubGeocoder{}, routes, nil)
	s := e.Connect()
	defer e.Disconnect(s.ID)
	ctx := context.Background()

	if got := e.GetCurrentInstruction(s.ID); got != CannotGuide {
		t.Errorf("instruction without state = %q", got)
	}

	if _, err := e.SetDestination(ctx, s.ID, domain.CoordinateDestination(fixtureDest)); err != nil {
		t.Fatalf("SetDestination: %v", err)
	}
	if _, err := e.UpdateLocation(ctx, s.ID, fixtureOrigin); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	waitEvent(t, s, EventVoiceGuidance)

	got := e.GetCurrentInstruction(s.ID)
	if !strings.Contains(got, "우회전") {
		t.Errorf("instruction = %q, want right-turn phrase", got)
	}
}

func TestDisconnectClosesEventStream(t *testing.T) {
	e := newTestEngine(&stubGeocoder{}, &stubRouteProvider{}, nil)
	s := e.Connect()

	e.Disconnect(s.ID)
	select {
	case _, ok := <-s.Events():
		if ok {
			t.Fatal("expected closed stream, got event")
		}
	case <-time.After(time.Second):
		t.Fatal("event stream not closed after disconnect")
	}

	// A second disconnect for the same ID is a no-op.
	e.Disconnect(s.ID)
}
