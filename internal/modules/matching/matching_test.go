// README: Matching service unit tests covering PickRandomDrivers and dispatch logic.
package matching

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/config"
	"github.com/GroupeBH/zwanga-sub000/internal/events"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/negotiation"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

func TestPickRandomDrivers_NormalCase(t *testing.T) {
	pool := makeDriverPool(10)
	selected := PickRandomDrivers(pool, 5)
	if len(selected) != 5 {
		t.Fatalf("expected 5, got %d", len(selected))
	}
	assertSubset(t, pool, selected)
	assertUnique(t, selected)
}

func TestPickRandomDrivers_FewerThanN(t *testing.T) {
	pool := makeDriverPool(3)
	selected := PickRandomDrivers(pool, 10)
	if len(selected) != 3 {
		t.Fatalf("expected all 3, got %d", len(selected))
	}
	assertUnique(t, selected)
}

func TestPickRandomDrivers_EmptyOrZero(t *testing.T) {
	if got := PickRandomDrivers(nil, 5); len(got) != 0 {
		t.Fatalf("expected 0 from nil pool, got %d", len(got))
	}
	if got := PickRandomDrivers(makeDriverPool(5), 0); len(got) != 0 {
		t.Fatalf("expected 0 for n=0, got %d", len(got))
	}
	if got := PickRandomDrivers(makeDriverPool(5), -1); len(got) != 0 {
		t.Fatalf("expected 0 for n<0, got %d", len(got))
	}
}

func TestPickRandomDrivers_DoesNotMutatePool(t *testing.T) {
	pool := makeDriverPool(5)
	orig := make([]types.ID, len(pool))
	copy(orig, pool)
	PickRandomDrivers(pool, 3)
	for i, d := range pool {
		if d != orig[i] {
			t.Fatalf("pool mutated at index %d: got %s, want %s", i, d, orig[i])
		}
	}
}

// mockMatchingStore is an in-memory MatchingStore. Drivers within radius are
// decided by the caller through nearby, keyed by radius.
type mockMatchingStore struct {
	mu         sync.Mutex
	requests   map[types.ID]types.Point
	drivers    map[types.ID]types.Point
	nearby     map[float64][]types.ID
	dispatched map[types.ID]time.Time
	notified   map[types.ID]map[types.ID]bool
	broadcast  map[types.ID]bool
}

func newMockMatchingStore() *mockMatchingStore {
	return &mockMatchingStore{
		requests:   map[types.ID]types.Point{},
		drivers:    map[types.ID]types.Point{},
		nearby:     map[float64][]types.ID{},
		dispatched: map[types.ID]time.Time{},
		notified:   map[types.ID]map[types.ID]bool{},
		broadcast:  map[types.ID]bool{},
	}
}

func (m *mockMatchingStore) AddRequest(_ context.Context, id types.ID, origin types.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[id] = origin
	return nil
}

func (m *mockMatchingStore) RemoveRequest(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, id)
	delete(m.dispatched, id)
	delete(m.notified, id)
	delete(m.broadcast, id)
	return nil
}

func (m *mockMatchingStore) NearbyRequests(_ context.Context, _ types.Point, _ float64) ([]NearbyRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]NearbyRequest, 0, len(m.requests))
	for id := range m.requests {
		out = append(out, NearbyRequest{ID: string(id)})
	}
	return out, nil
}

func (m *mockMatchingStore) AddDriver(_ context.Context, id types.ID, p types.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[id] = p
	return nil
}

func (m *mockMatchingStore) RemoveDriver(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drivers, id)
	return nil
}

func (m *mockMatchingStore) NearbyDrivers(_ context.Context, _ types.Point, radiusKm float64) ([]types.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ID(nil), m.nearby[radiusKm]...), nil
}

func (m *mockMatchingStore) RecordDispatch(_ context.Context, id types.ID, drivers []types.ID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dispatched[id]; !ok {
		m.dispatched[id] = at
	}
	if m.notified[id] == nil {
		m.notified[id] = map[types.ID]bool{}
	}
	for _, d := range drivers {
		m.notified[id][d] = true
	}
	return nil
}

func (m *mockMatchingStore) Notified(_ context.Context, id types.ID) (map[types.ID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.ID]bool, len(m.notified[id]))
	for d := range m.notified[id] {
		out[d] = true
	}
	return out, nil
}

func (m *mockMatchingStore) GetDispatchedAt(_ context.Context, id types.ID) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.dispatched[id]
	return at, ok, nil
}

func (m *mockMatchingStore) MarkBroadcast(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast[id] = true
	return nil
}

func (m *mockMatchingStore) IsBroadcast(_ context.Context, id types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.broadcast[id], nil
}

type stubRequests struct {
	open    []*negotiation.TripRequest
	expired int
}

func (s *stubRequests) ListOpen(context.Context, int) ([]*negotiation.TripRequest, error) {
	return s.open, nil
}

func (s *stubRequests) ExpireDue(context.Context, time.Time) (int, error) {
	s.expired++
	return 0, nil
}

type capturePublisher struct {
	mu   sync.Mutex
	sent []events.Event
}

func (c *capturePublisher) Publish(_ context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, e)
	return nil
}

var gombe = types.Point{Lat: -4.3036, Lng: 15.3050}

func newDispatchFixture(t *testing.T, windowStart time.Time) (*Service, *mockMatchingStore, *capturePublisher, *negotiation.TripRequest) {
	t.Helper()
	store := newMockMatchingStore()
	pub := &capturePublisher{}
	req := &negotiation.TripRequest{
		ID:          "req-1",
		RiderID:     "rider-1",
		Origin:      gombe,
		Destination: types.Point{Lat: -4.3900, Lng: 15.2600},
		WindowStart: windowStart,
		WindowEnd:   windowStart.Add(2 * time.Hour),
		Seats:       1,
		Status:      negotiation.RequestPending,
	}
	svc := NewService(store, &stubRequests{open: []*negotiation.TripRequest{req}}, pub, config.MatchingConfig{TickSeconds: 1, RadiusKm: 5})
	return svc, store, pub, req
}

func TestInitialDispatchNotifiesSampleExcludingRider(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	svc, store, pub, req := newDispatchFixture(t, now.Add(3*time.Hour))
	svc.now = func() time.Time { return now }
	store.nearby[5] = append([]types.ID{"rider-1"}, makeDriverPool(12)...)

	svc.tick(context.Background())

	if len(pub.sent) != 1 {
		t.Fatalf("expected one nearby event, got %d", len(pub.sent))
	}
	got := pub.sent[0]
	if got.Type != events.RequestNearby || got.Subject != req.ID {
		t.Fatalf("unexpected event %+v", got)
	}
	if len(got.Recipients) != notifyInitialCount {
		t.Fatalf("expected %d recipients, got %d", notifyInitialCount, len(got.Recipients))
	}
	assertUnique(t, got.Recipients)
	// Only the closest selectPoolSize drivers are eligible, and never the rider.
	assertSubset(t, store.nearby[5][1:selectPoolSize+1], got.Recipients)

	// A second tick before the delay sends nothing new.
	svc.tick(context.Background())
	if len(pub.sent) != 1 {
		t.Fatalf("expected no further events before broadcast delay, got %d", len(pub.sent))
	}
}

func TestBroadcastAfterDelayReachesNewDriversOnce(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	svc, store, pub, _ := newDispatchFixture(t, now.Add(3*time.Hour))
	svc.now = func() time.Time { return now }
	store.nearby[5] = makeDriverPool(3)
	store.nearby[10] = makeDriverPool(20)

	svc.tick(context.Background())
	first := pub.sent[0].Recipients

	svc.now = func() time.Time { return now.Add(broadcastDelay) }
	svc.tick(context.Background())
	if len(pub.sent) != 2 {
		t.Fatalf("expected broadcast event, got %d events", len(pub.sent))
	}
	extra := pub.sent[1].Recipients
	if len(extra) != broadcastExtraCount {
		t.Fatalf("expected %d extra drivers, got %d", broadcastExtraCount, len(extra))
	}
	seen := map[types.ID]bool{}
	for _, d := range first {
		seen[d] = true
	}
	for _, d := range extra {
		if seen[d] {
			t.Errorf("driver %s notified twice", d)
		}
	}

	svc.now = func() time.Time { return now.Add(2 * broadcastDelay) }
	svc.tick(context.Background())
	if len(pub.sent) != 2 {
		t.Fatalf("broadcast must happen once, got %d events", len(pub.sent))
	}
}

func TestBroadcastEarlyWhenWindowIsClose(t *testing.T) {
	now := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	svc, store, pub, _ := newDispatchFixture(t, now.Add(30*time.Minute))
	svc.now = func() time.Time { return now }
	store.nearby[5] = makeDriverPool(2)
	store.nearby[10] = makeDriverPool(4)

	svc.tick(context.Background())
	svc.now = func() time.Time { return now.Add(time.Second) }
	svc.tick(context.Background())

	if len(pub.sent) != 2 {
		t.Fatalf("expected initial and broadcast events, got %d", len(pub.sent))
	}
	if len(pub.sent[1].Recipients) != 2 {
		t.Fatalf("expected the 2 drivers not yet notified, got %v", pub.sent[1].Recipients)
	}
}

func TestTickExpiresBeforeDispatching(t *testing.T) {
	store := newMockMatchingStore()
	requests := &stubRequests{}
	svc := NewService(store, requests, nil, config.MatchingConfig{RadiusKm: 5})
	svc.tick(context.Background())
	if requests.expired != 1 {
		t.Fatalf("expected ExpireDue to run once, got %d", requests.expired)
	}
}

func TestIndexAndNearby(t *testing.T) {
	store := newMockMatchingStore()
	svc := NewService(store, &stubRequests{}, nil, config.MatchingConfig{RadiusKm: 5})
	ctx := context.Background()

	if err := svc.IndexRequest(ctx, "req-1", gombe); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := store.RecordDispatch(ctx, "req-1", []types.ID{"d1"}, time.Now()); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := svc.Nearby(ctx, gombe, 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected one nearby request, got %v err=%v", got, err)
	}
	if err := svc.UnindexRequest(ctx, "req-1"); err != nil {
		t.Fatalf("unindex: %v", err)
	}
	if _, ok, _ := store.GetDispatchedAt(ctx, "req-1"); ok {
		t.Fatal("unindex must clear dispatch bookkeeping")
	}
}

func makeDriverPool(n int) []types.ID {
	pool := make([]types.ID, n)
	for i := range pool {
		pool[i] = types.ID(fmt.Sprintf("driver_%02d", i))
	}
	return pool
}

func assertSubset(t *testing.T, pool, subset []types.ID) {
	t.Helper()
	set := make(map[types.ID]bool, len(pool))
	for _, d := range pool {
		set[d] = true
	}
	for _, d := range subset {
		if !set[d] {
			t.Errorf("selected driver %s not in pool", d)
		}
	}
}

func assertUnique(t *testing.T, ids []types.ID) {
	t.Helper()
	sorted := append([]types.ID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			t.Errorf("duplicate driver ID %s", sorted[i])
		}
	}
}
