// README: Matching service indexes open requests and dispatches them to nearby drivers.
package matching

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/config"
	"github.com/GroupeBH/zwanga-sub000/internal/events"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/negotiation"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type MatchingStore interface {
	AddRequest(ctx context.Context, id types.ID, origin types.Point) error
	RemoveRequest(ctx context.Context, id types.ID) error
	NearbyRequests(ctx context.Context, p types.Point, radiusKm float64) ([]NearbyRequest, error)
	AddDriver(ctx context.Context, id types.ID, p types.Point) error
	RemoveDriver(ctx context.Context, id types.ID) error
	NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
	RecordDispatch(ctx context.Context, requestID types.ID, driverIDs []types.ID, at time.Time) error
	Notified(ctx context.Context, requestID types.ID) (map[types.ID]bool, error)
	GetDispatchedAt(ctx context.Context, requestID types.ID) (time.Time, bool, error)
	MarkBroadcast(ctx context.Context, requestID types.ID) error
	IsBroadcast(ctx context.Context, requestID types.ID) (bool, error)
}

// RequestSource is the negotiation side the scheduler drives.
type RequestSource interface {
	ListOpen(ctx context.Context, limit int) ([]*negotiation.TripRequest, error)
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

type Service struct {
	store    MatchingStore
	requests RequestSource
	events   events.Publisher
	cfg      config.MatchingConfig
	now      func() time.Time
}

func NewService(store MatchingStore, requests RequestSource, publisher events.Publisher, cfg config.MatchingConfig) *Service {
	if publisher == nil {
		publisher = events.Discard
	}
	return &Service{store: store, requests: requests, events: publisher, cfg: cfg, now: time.Now}
}

// SetRequests breaks the construction cycle with the negotiation service,
// which needs this service as its RequestIndex.
func (s *Service) SetRequests(requests RequestSource) {
	s.requests = requests
}

func (s *Service) IndexRequest(ctx context.Context, id types.ID, origin types.Point) error {
	return s.store.AddRequest(ctx, id, origin)
}

func (s *Service) UnindexRequest(ctx context.Context, id types.ID) error {
	return s.store.RemoveRequest(ctx, id)
}

// Nearby lists open requests around p, closest first. A non-positive radius
// uses the configured one.
func (s *Service) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]NearbyRequest, error) {
	if radiusKm <= 0 {
		radiusKm = s.cfg.RadiusKm
	}
	return s.store.NearbyRequests(ctx, p, radiusKm)
}

func (s *Service) SetDriverAvailable(ctx context.Context, driverID types.ID, p types.Point) error {
	return s.store.AddDriver(ctx, driverID, p)
}

func (s *Service) SetDriverUnavailable(ctx context.Context, driverID types.ID) error {
	return s.store.RemoveDriver(ctx, driverID)
}

func (s *Service) RunScheduler(ctx context.Context) {
	tick := time.Duration(s.cfg.TickSeconds) * time.Second
	if tick <= 0 {
		tick = 30 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick expires requests whose window passed, then dispatches the rest.
func (s *Service) tick(ctx context.Context) {
	now := s.now()
	if n, err := s.requests.ExpireDue(ctx, now); err != nil {
		slog.ErrorContext(ctx, "expire due requests failed", "error", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "expired trip requests", "count", n)
	}

	open, err := s.requests.ListOpen(ctx, openRequestScan)
	if err != nil {
		slog.ErrorContext(ctx, "list open requests failed", "error", err)
		return
	}
	for _, r := range open {
		if err := s.dispatch(ctx, r, now); err != nil {
			slog.WarnContext(ctx, "dispatch request failed", "request_id", r.ID, "error", err)
		}
	}
}

// dispatch notifies a random sample of nearby drivers once, then opens the
// request to a wider radius after broadcastDelay or when its window is close.
func (s *Service) dispatch(ctx context.Context, r *negotiation.TripRequest, now time.Time) error {
	dispatchedAt, dispatched, err := s.store.GetDispatchedAt(ctx, r.ID)
	if err != nil {
		return err
	}
	if !dispatched {
		pool, err := s.store.NearbyDrivers(ctx, r.Origin, s.cfg.RadiusKm)
		if err != nil {
			return err
		}
		pool = exclude(pool, map[types.ID]bool{r.RiderID: true})
		if len(pool) > selectPoolSize {
			pool = pool[:selectPoolSize]
		}
		picked := PickRandomDrivers(pool, notifyInitialCount)
		if err := s.store.RecordDispatch(ctx, r.ID, picked, now); err != nil {
			return err
		}
		s.notify(ctx, r, picked)
		return nil
	}

	broadcast, err := s.store.IsBroadcast(ctx, r.ID)
	if err != nil || broadcast {
		return err
	}
	if now.Sub(dispatchedAt) < broadcastDelay && r.WindowStart.Sub(now) > windowLead {
		return nil
	}

	pool, err := s.store.NearbyDrivers(ctx, r.Origin, s.cfg.RadiusKm*broadcastRadiusFactor)
	if err != nil {
		return err
	}
	notified, err := s.store.Notified(ctx, r.ID)
	if err != nil {
		return err
	}
	notified[r.RiderID] = true
	extra := exclude(pool, notified)
	if len(extra) > broadcastExtraCount {
		extra = extra[:broadcastExtraCount]
	}
	if err := s.store.RecordDispatch(ctx, r.ID, extra, now); err != nil {
		return err
	}
	if err := s.store.MarkBroadcast(ctx, r.ID); err != nil {
		return err
	}
	s.notify(ctx, r, extra)
	return nil
}

func (s *Service) notify(ctx context.Context, r *negotiation.TripRequest, drivers []types.ID) {
	if len(drivers) == 0 {
		return
	}
	data := map[string]string{
		"origin":       r.Origin.String(),
		"destination":  r.Destination.String(),
		"window_start": r.WindowStart.UTC().Format(time.RFC3339),
		"window_end":   r.WindowEnd.UTC().Format(time.RFC3339),
	}
	events.Notify(ctx, s.events, events.Event{
		Type:       events.RequestNearby,
		Subject:    r.ID,
		Recipients: drivers,
		Data:       data,
	})
}

// PickRandomDrivers returns up to n distinct drivers from pool without mutating it.
func PickRandomDrivers(pool []types.ID, n int) []types.ID {
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	cp := make([]types.ID, len(pool))
	copy(cp, pool)
	rand.Shuffle(len(cp), func(i, j int) { cp[i], cp[j] = cp[j], cp[i] })
	if n > len(cp) {
		n = len(cp)
	}
	return cp[:n]
}

func exclude(pool []types.ID, skip map[types.ID]bool) []types.ID {
	out := make([]types.ID, 0, len(pool))
	for _, id := range pool {
		if !skip[id] {
			out = append(out, id)
		}
	}
	return out
}
