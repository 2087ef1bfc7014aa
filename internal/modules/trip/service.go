// README: Trip service implements driver-side transitions and planned travel estimates.
package trip

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/events"
	"github.com/GroupeBH/zwanga-sub000/internal/geo"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

// fallbackSpeed is used when the routing provider cannot estimate a trip (30 km/h).
const fallbackSpeed = 8.33

var (
	ErrNotFound     = errors.New("trip not found")
	ErrInvalidState = errors.New("invalid trip state transition")
	ErrConflict     = errors.New("trip state conflict")
	ErrNotDriver    = errors.New("caller is not the trip driver")
	ErrValidation   = errors.New("invalid trip")
)

// Estimator returns the planned distance and duration between two points.
type Estimator interface {
	TravelEstimate(ctx context.Context, origin, destination types.Point) (int, time.Duration, error)
}

type TripStore interface {
	Create(ctx context.Context, t *Trip) error
	Get(ctx context.Context, id types.ID) (*Trip, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]*Trip, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error)
	UpdateProgress(ctx context.Context, id types.ID, progress int) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
}

type Service struct {
	store     TripStore
	estimator Estimator
	events    events.Publisher
}

func NewService(store TripStore, estimator Estimator, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Discard
	}
	return &Service{store: store, estimator: estimator, events: publisher}
}

type CreateCommand struct {
	DriverID      types.ID
	Origin        types.Point
	Destination   types.Point
	DepartureTime time.Time
	Capacity      int
	PricePerSeat  types.Money
}

type TransitionCommand struct {
	TripID   types.ID
	DriverID types.ID
}

type ProgressCommand struct {
	TripID   types.ID
	DriverID types.ID
	Progress int
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Trip, error) {
	if cmd.DriverID == "" || cmd.Capacity < 1 || cmd.PricePerSeat.Amount < 0 {
		return nil, ErrValidation
	}
	if !cmd.Origin.Valid() || !cmd.Destination.Valid() {
		return nil, ErrValidation
	}
	if cmd.PricePerSeat.Currency == "" {
		cmd.PricePerSeat.Currency = types.DefaultCurrency
	}

	now := time.Now()
	t := &Trip{
		ID:            types.NewID(),
		DriverID:      cmd.DriverID,
		Origin:        cmd.Origin,
		Destination:   cmd.Destination,
		DepartureTime: cmd.DepartureTime,
		Capacity:      cmd.Capacity,
		PricePerSeat:  cmd.PricePerSeat,
		Status:        StatusUpcoming,
		CreatedAt:     now,
	}
	t.PlannedDistanceMeters, t.PlannedDuration = s.estimate(ctx, cmd.Origin, cmd.Destination)

	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		TripID:     t.ID,
		FromStatus: StatusNone,
		ToStatus:   StatusUpcoming,
		ActorID:    &cmd.DriverID,
		CreatedAt:  now,
	})
	return t, nil
}

// Plan fills planned distance and duration for trips created outside Create.
func (s *Service) Plan(ctx context.Context, t *Trip) {
	t.PlannedDistanceMeters, t.PlannedDuration = s.estimate(ctx, t.Origin, t.Destination)
}

func (s *Service) estimate(ctx context.Context, origin, destination types.Point) (int, time.Duration) {
	if s.estimator != nil {
		meters, dur, err := s.estimator.TravelEstimate(ctx, origin, destination)
		if err == nil {
			return meters, dur
		}
		slog.DebugContext(ctx, "travel estimate unavailable, using straight line", "error", err)
	}
	d := geo.DistanceMeters(origin, destination)
	return int(d), time.Duration(d/fallbackSpeed) * time.Second
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Trip, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByDriver(ctx context.Context, driverID types.ID) ([]*Trip, error) {
	return s.store.ListByDriver(ctx, driverID)
}

func (s *Service) Start(ctx context.Context, cmd TransitionCommand) (*Trip, error) {
	return s.transition(ctx, cmd, StatusOngoing, events.TripStarted)
}

func (s *Service) Complete(ctx context.Context, cmd TransitionCommand) (*Trip, error) {
	return s.transition(ctx, cmd, StatusCompleted, events.TripCompleted)
}

func (s *Service) Cancel(ctx context.Context, cmd TransitionCommand) (*Trip, error) {
	return s.transition(ctx, cmd, StatusCancelled, events.TripCancelled)
}

func (s *Service) transition(ctx context.Context, cmd TransitionCommand, to Status, kind string) (*Trip, error) {
	t, err := s.store.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if t.DriverID != cmd.DriverID {
		return nil, ErrNotDriver
	}
	if t.Status == to {
		return t, nil
	}
	if !CanTransition(t.Status, to) {
		return nil, ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, t.ID, t.Status, to, t.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	_ = s.store.AppendEvent(ctx, &Event{
		TripID:     t.ID,
		FromStatus: t.Status,
		ToStatus:   to,
		ActorID:    &cmd.DriverID,
		CreatedAt:  time.Now(),
	})
	events.Notify(ctx, s.events, events.Event{
		Type:    kind,
		Subject: t.ID,
		Data:    map[string]string{"trip_id": string(t.ID), "status": string(to)},
	})
	return s.store.Get(ctx, t.ID)
}

func (s *Service) UpdateProgress(ctx context.Context, cmd ProgressCommand) (*Trip, error) {
	t, err := s.store.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if t.DriverID != cmd.DriverID {
		return nil, ErrNotDriver
	}
	if t.Status != StatusOngoing {
		return nil, ErrInvalidState
	}
	progress := ClampProgress(cmd.Progress)
	ok, err := s.store.UpdateProgress(ctx, t.ID, progress)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	t.Progress = &progress
	return t, nil
}

func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
