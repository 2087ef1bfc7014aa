// README: Booking service implements seat reservation, driver decisions and pickup/drop-off confirmation.
package booking

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/config"
	"github.com/GroupeBH/zwanga-sub000/internal/events"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/trip"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

var (
	ErrNotFound        = errors.New("booking not found")
	ErrInvalidState    = errors.New("invalid booking state transition")
	ErrConflict        = errors.New("booking state conflict")
	ErrValidation      = errors.New("invalid booking")
	ErrCapacity        = errors.New("not enough seats left on this trip")
	ErrPerRiderLimit   = errors.New("seat limit per rider exceeded")
	ErrTripNotBookable = errors.New("trip is not open for booking")
	ErrTripNotOngoing  = errors.New("trip has not started")
	ErrNotDriver       = errors.New("only the trip driver can do this")
	ErrNotRider        = errors.New("only the booking rider can do this")
	ErrAlreadyPickedUp = errors.New("rider already picked up")
	ErrNotPickedUp     = errors.New("rider not picked up yet")
	ErrNotVerified     = errors.New("identity verification not approved")
)

type TripReader interface {
	Get(ctx context.Context, id types.ID) (*trip.Trip, error)
}

// IdentityChecker reports whether a user passed identity verification.
type IdentityChecker interface {
	IsApproved(ctx context.Context, userID types.ID) (bool, error)
}

type BookingStore interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	ListByTrip(ctx context.Context, tripID types.ID) ([]*Booking, error)
	ListByRider(ctx context.Context, riderID types.ID) ([]*Booking, error)
	// Accept moves a pending booking to accepted while holding the trip row, and
	// returns ErrCapacity when the trip cannot fit the seats.
	Accept(ctx context.Context, id types.ID, version int) (bool, error)
	Update(ctx context.Context, b *Booking, version int) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
}

type Service struct {
	store            BookingStore
	trips            TripReader
	identity         IdentityChecker
	events           events.Publisher
	maxSeatsPerRider int
}

func NewService(store BookingStore, trips TripReader, identity IdentityChecker, publisher events.Publisher, cfg config.BookingConfig) *Service {
	if publisher == nil {
		publisher = events.Discard
	}
	limit := cfg.MaxSeatsPerRider
	if limit <= 0 {
		limit = 4
	}
	return &Service{store: store, trips: trips, identity: identity, events: publisher, maxSeatsPerRider: limit}
}

type CreateCommand struct {
	TripID  types.ID
	RiderID types.ID
	Seats   int
	Pickup  *types.Point
	Dropoff *types.Point
}

type DecideCommand struct {
	BookingID types.ID
	DriverID  types.ID
	Accept    bool
	Reason    string
}

type CancelCommand struct {
	BookingID types.ID
	RiderID   types.ID
}

type ConfirmCommand struct {
	BookingID types.ID
	ActorID   types.ID
	By        Actor
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Booking, error) {
	if cmd.RiderID == "" || cmd.Seats < 1 {
		return nil, ErrValidation
	}
	if (cmd.Pickup != nil && !cmd.Pickup.Valid()) || (cmd.Dropoff != nil && !cmd.Dropoff.Valid()) {
		return nil, ErrValidation
	}
	t, err := s.trips.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if t.DriverID == cmd.RiderID {
		return nil, ErrValidation
	}
	if t.Status != trip.StatusUpcoming {
		return nil, ErrTripNotBookable
	}
	if err := s.checkIdentity(ctx, cmd.RiderID); err != nil {
		return nil, err
	}

	existing, err := s.store.ListByTrip(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	riderSeats, acceptedSeats := 0, 0
	for _, b := range existing {
		if b.RiderID == cmd.RiderID && b.Active() {
			riderSeats += b.Seats
		}
		if b.Status == StatusAccepted {
			acceptedSeats += b.Seats
		}
	}
	if riderSeats+cmd.Seats > s.maxSeatsPerRider {
		return nil, ErrPerRiderLimit
	}
	if acceptedSeats+cmd.Seats > t.Capacity {
		return nil, ErrCapacity
	}

	now := time.Now()
	b := &Booking{
		ID:        types.NewID(),
		TripID:    t.ID,
		RiderID:   cmd.RiderID,
		Seats:     cmd.Seats,
		Status:    StatusPending,
		Pickup:    cmd.Pickup,
		Dropoff:   cmd.Dropoff,
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, b.ID, StatusNone, StatusPending, "created", &cmd.RiderID)
	events.Notify(ctx, s.events, events.Event{
		Type:       events.BookingCreated,
		Subject:    b.ID,
		Recipients: []types.ID{t.DriverID},
		Data:       map[string]string{"trip_id": string(t.ID), "seats": strconv.Itoa(b.Seats)},
	})
	return b, nil
}

func (s *Service) checkIdentity(ctx context.Context, userID types.ID) error {
	if s.identity == nil {
		return nil
	}
	ok, err := s.identity.IsApproved(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotVerified
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByTrip(ctx context.Context, tripID types.ID) ([]*Booking, error) {
	return s.store.ListByTrip(ctx, tripID)
}

func (s *Service) ListByRider(ctx context.Context, riderID types.ID) ([]*Booking, error) {
	return s.store.ListByRider(ctx, riderID)
}

// Decide accepts or rejects a pending booking on behalf of the trip driver.
func (s *Service) Decide(ctx context.Context, cmd DecideCommand) (*Booking, error) {
	reason := strings.TrimSpace(cmd.Reason)
	if !cmd.Accept && reason == "" {
		return nil, ErrValidation
	}
	b, t, err := s.load(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if t.DriverID != cmd.DriverID {
		return nil, ErrNotDriver
	}

	if cmd.Accept {
		if b.Status == StatusAccepted {
			return b, nil
		}
		if b.Status != StatusPending {
			return nil, ErrInvalidState
		}
		if !t.Active() {
			return nil, ErrTripNotBookable
		}
		ok, err := s.store.Accept(ctx, b.ID, b.StatusVersion)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrConflict
		}
		s.appendEvent(ctx, b.ID, StatusPending, StatusAccepted, "accepted", &cmd.DriverID)
		s.notifyRider(ctx, events.BookingAccepted, b)
		return s.store.Get(ctx, b.ID)
	}

	if b.Status == StatusRejected {
		return b, nil
	}
	if b.Status != StatusPending {
		return nil, ErrInvalidState
	}
	version := b.StatusVersion
	now := time.Now()
	b.Status = StatusRejected
	b.RejectReason = &reason
	b.DecidedAt = &now
	if err := s.update(ctx, b, version); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, b.ID, StatusPending, StatusRejected, "rejected", &cmd.DriverID)
	s.notifyRider(ctx, events.BookingRejected, b)
	return b, nil
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Booking, error) {
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if b.RiderID != cmd.RiderID {
		return nil, ErrNotRider
	}
	if b.Status == StatusCancelled {
		return b, nil
	}
	if b.PickedUp() {
		return nil, ErrAlreadyPickedUp
	}
	if !CanTransition(b.Status, StatusCancelled) {
		return nil, ErrInvalidState
	}
	from, version := b.Status, b.StatusVersion
	now := time.Now()
	b.Status = StatusCancelled
	b.CancelledAt = &now
	if err := s.update(ctx, b, version); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, b.ID, from, StatusCancelled, "cancelled", &cmd.RiderID)
	if t, err := s.trips.Get(ctx, b.TripID); err == nil {
		events.Notify(ctx, s.events, events.Event{
			Type:       events.BookingCancelled,
			Subject:    b.ID,
			Recipients: []types.ID{t.DriverID},
			Data:       map[string]string{"trip_id": string(b.TripID)},
		})
	}
	return b, nil
}

// ConfirmPickup records the actor's pickup flag. Repeating a confirmation is a no-op.
func (s *Service) ConfirmPickup(ctx context.Context, cmd ConfirmCommand) (*Booking, error) {
	b, t, err := s.load(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(cmd, b, t); err != nil {
		return nil, err
	}
	if b.PickupConfirmed(cmd.By) {
		return b, nil
	}
	if b.Status != StatusAccepted {
		return nil, ErrInvalidState
	}
	if t.Status != trip.StatusOngoing {
		return nil, ErrTripNotOngoing
	}

	version := b.StatusVersion
	now := time.Now()
	if cmd.By == ActorDriver {
		b.DriverPickupAt = &now
	} else {
		b.RiderPickupAt = &now
	}
	if err := s.update(ctx, b, version); err != nil {
		return s.settle(ctx, b.ID, err, func(cur *Booking) bool { return cur.PickupConfirmed(cmd.By) })
	}
	s.appendEvent(ctx, b.ID, b.Status, b.Status, "pickup:"+string(cmd.By), &cmd.ActorID)
	events.Notify(ctx, s.events, events.Event{
		Type:       events.BookingPickedUp,
		Subject:    b.ID,
		Recipients: counterpart(cmd.By, b, t),
		Data:       map[string]string{"trip_id": string(b.TripID), "by": string(cmd.By)},
	})
	return b, nil
}

// ConfirmDropoff records the actor's drop-off flag; the driver's drop-off completes the booking.
func (s *Service) ConfirmDropoff(ctx context.Context, cmd ConfirmCommand) (*Booking, error) {
	b, t, err := s.load(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(cmd, b, t); err != nil {
		return nil, err
	}
	if b.DropoffConfirmed(cmd.By) {
		return b, nil
	}
	if b.Status != StatusAccepted && !(b.Status == StatusCompleted && cmd.By == ActorRider) {
		return nil, ErrInvalidState
	}
	if !b.PickedUp() {
		return nil, ErrNotPickedUp
	}

	from, version := b.Status, b.StatusVersion
	now := time.Now()
	if cmd.By == ActorDriver {
		if b.DriverPickupAt == nil {
			b.DriverPickupAt = &now
		}
		b.DriverDropoffAt = &now
		b.Status = StatusCompleted
		b.CompletedAt = &now
	} else {
		b.RiderDropoffAt = &now
	}
	if err := s.update(ctx, b, version); err != nil {
		return s.settle(ctx, b.ID, err, func(cur *Booking) bool { return cur.DropoffConfirmed(cmd.By) })
	}
	s.appendEvent(ctx, b.ID, from, b.Status, "dropoff:"+string(cmd.By), &cmd.ActorID)
	events.Notify(ctx, s.events, events.Event{
		Type:       events.BookingDroppedOff,
		Subject:    b.ID,
		Recipients: counterpart(cmd.By, b, t),
		Data:       map[string]string{"trip_id": string(b.TripID), "by": string(cmd.By)},
	})
	return b, nil
}

func (s *Service) load(ctx context.Context, id types.ID) (*Booking, *trip.Trip, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	t, err := s.trips.Get(ctx, b.TripID)
	if err != nil {
		return nil, nil, err
	}
	return b, t, nil
}

func (s *Service) update(ctx context.Context, b *Booking, version int) error {
	ok, err := s.store.Update(ctx, b, version)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	b.StatusVersion = version + 1
	return nil
}

// settle resolves a lost race: if a concurrent retry already applied the same
// confirmation, the current state is returned instead of a conflict.
func (s *Service) settle(ctx context.Context, id types.ID, cause error, applied func(*Booking) bool) (*Booking, error) {
	if !errors.Is(cause, ErrConflict) {
		return nil, cause
	}
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if applied(cur) {
		return cur, nil
	}
	return nil, ErrConflict
}

func (s *Service) appendEvent(ctx context.Context, id types.ID, from, to Status, action string, actor *types.ID) {
	_ = s.store.AppendEvent(ctx, &Event{
		BookingID:  id,
		FromStatus: from,
		ToStatus:   to,
		Action:     action,
		ActorID:    actor,
		CreatedAt:  time.Now(),
	})
}

func (s *Service) notifyRider(ctx context.Context, kind string, b *Booking) {
	events.Notify(ctx, s.events, events.Event{
		Type:       kind,
		Subject:    b.ID,
		Recipients: []types.ID{b.RiderID},
		Data:       map[string]string{"trip_id": string(b.TripID)},
	})
}

func authorize(cmd ConfirmCommand, b *Booking, t *trip.Trip) error {
	switch cmd.By {
	case ActorDriver:
		if t.DriverID != cmd.ActorID {
			return ErrNotDriver
		}
	case ActorRider:
		if b.RiderID != cmd.ActorID {
			return ErrNotRider
		}
	default:
		return ErrValidation
	}
	return nil
}

func counterpart(by Actor, b *Booking, t *trip.Trip) []types.ID {
	if by == ActorDriver {
		return []types.ID{b.RiderID}
	}
	return []types.ID{t.DriverID}
}
