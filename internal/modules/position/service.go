// README: Position service authorizes trip participants and records driver updates.
package position

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/GroupeBH/zwanga-sub000/internal/modules/booking"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/trip"
	"github.com/GroupeBH/zwanga-sub000/internal/observability"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

var (
	ErrTripNotFound   = errors.New("trip not found")
	ErrNotParticipant = errors.New("caller is not a participant of the trip")
	ErrNotDriver      = errors.New("only the trip driver may update its position")
	ErrTripNotLive    = errors.New("trip is not upcoming or ongoing")
	ErrValidation     = errors.New("invalid position")
	ErrNoPosition     = errors.New("no position recorded for trip")
)

// snapshotEvery bounds how often one trip's position is written to Postgres.
const (
	snapshotEvery     = 30 * time.Second
	snapshotPruneSize = 1024
)

type PositionStore interface {
	SetLast(ctx context.Context, l Live) error
	GetLast(ctx context.Context, tripID types.ID) (*Live, error)
	Publish(ctx context.Context, l Live) error
	Subscribe(ctx context.Context, tripID types.ID) (Subscription, error)
	AppendSnapshot(ctx context.Context, snap Snapshot) error
}

type TripReader interface {
	Get(ctx context.Context, id types.ID) (*trip.Trip, error)
}

type BookingLister interface {
	ListByTrip(ctx context.Context, tripID types.ID) ([]*booking.Booking, error)
}

// HistoryWriter is satisfied by *kafka.Writer.
type HistoryWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Service struct {
	store    PositionStore
	trips    TripReader
	bookings BookingLister
	history  HistoryWriter
	now      func() time.Time

	mu            sync.Mutex
	lastSnapshots map[types.ID]time.Time
}

// NewService wires the position service. history may be nil when no broker is configured.
func NewService(store PositionStore, trips TripReader, bookings BookingLister, history HistoryWriter) *Service {
	return &Service{
		store:         store,
		trips:         trips,
		bookings:      bookings,
		history:       history,
		now:           time.Now,
		lastSnapshots: make(map[types.ID]time.Time),
	}
}

type Update struct {
	TripID   types.ID
	DriverID types.ID
	Position types.Point
	Heading  *float64
}

// Authorize returns the caller's role on the trip: its driver, or a rider
// holding an accepted booking.
func (s *Service) Authorize(ctx context.Context, tripID, userID types.ID) (Role, error) {
	t, err := s.loadTrip(ctx, tripID)
	if err != nil {
		return "", err
	}
	if t.DriverID == userID {
		return RoleDriver, nil
	}
	bookings, err := s.bookings.ListByTrip(ctx, tripID)
	if err != nil {
		return "", err
	}
	for _, b := range bookings {
		if b.RiderID == userID && b.Status == booking.StatusAccepted {
			return RoleRider, nil
		}
	}
	return "", ErrNotParticipant
}

func (s *Service) Update(ctx context.Context, u Update) (Live, error) {
	if !u.Position.Valid() || (u.Heading != nil && (*u.Heading < 0 || *u.Heading >= 360)) {
		observability.PositionUpdates.WithLabelValues("invalid").Inc()
		return Live{}, ErrValidation
	}
	t, err := s.loadTrip(ctx, u.TripID)
	if err != nil {
		return Live{}, err
	}
	if t.DriverID != u.DriverID {
		observability.PositionUpdates.WithLabelValues("forbidden").Inc()
		return Live{}, ErrNotDriver
	}
	if !t.Active() {
		observability.PositionUpdates.WithLabelValues("closed").Inc()
		return Live{}, ErrTripNotLive
	}

	l := Live{
		TripID:   u.TripID,
		DriverID: u.DriverID,
		Point:    u.Position,
		Heading:  u.Heading,
		At:       s.now().UTC(),
	}
	if err := s.store.SetLast(ctx, l); err != nil {
		return Live{}, err
	}
	if err := s.store.Publish(ctx, l); err != nil {
		return Live{}, err
	}
	observability.PositionUpdates.WithLabelValues("accepted").Inc()

	s.appendHistory(ctx, l)
	s.maybeSnapshot(ctx, l)
	return l, nil
}

func (s *Service) Current(ctx context.Context, tripID types.ID) (*Live, error) {
	return s.store.GetLast(ctx, tripID)
}

func (s *Service) Subscribe(ctx context.Context, tripID types.ID) (Subscription, error) {
	return s.store.Subscribe(ctx, tripID)
}

func (s *Service) appendHistory(ctx context.Context, l Live) {
	if s.history == nil {
		return
	}
	payload, err := json.Marshal(l)
	if err != nil {
		return
	}
	if err := s.history.WriteMessages(ctx, kafka.Message{Key: []byte(l.TripID), Value: payload, Time: l.At}); err != nil {
		slog.WarnContext(ctx, "append position history failed", "trip_id", l.TripID, "error", err)
	}
}

func (s *Service) maybeSnapshot(ctx context.Context, l Live) {
	s.mu.Lock()
	last, ok := s.lastSnapshots[l.TripID]
	due := !ok || l.At.Sub(last) >= snapshotEvery
	if due {
		s.lastSnapshots[l.TripID] = l.At
		if len(s.lastSnapshots) > snapshotPruneSize {
			for id, at := range s.lastSnapshots {
				if l.At.Sub(at) >= snapshotEvery {
					delete(s.lastSnapshots, id)
				}
			}
		}
	}
	s.mu.Unlock()
	if !due {
		return
	}

	err := s.store.AppendSnapshot(ctx, Snapshot{
		TripID:     l.TripID,
		DriverID:   l.DriverID,
		Position:   l.Point,
		Heading:    l.Heading,
		RecordedAt: l.At,
	})
	if err != nil {
		slog.WarnContext(ctx, "append position snapshot failed", "trip_id", l.TripID, "error", err)
	}
}

func (s *Service) loadTrip(ctx context.Context, id types.ID) (*trip.Trip, error) {
	t, err := s.trips.Get(ctx, id)
	if errors.Is(err, trip.ErrNotFound) {
		return nil, ErrTripNotFound
	}
	return t, err
}
