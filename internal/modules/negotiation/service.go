// README: Negotiation service: riders post requests, drivers compete with offers, and an accepted offer becomes a trip.
package negotiation

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/events"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/booking"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/trip"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

var (
	ErrNotFound          = errors.New("request not found")
	ErrOfferNotFound     = errors.New("offer not found")
	ErrValidation        = errors.New("invalid request")
	ErrRequestClosed     = errors.New("request is not open for offers")
	ErrOutOfWindow       = errors.New("proposed time is outside the request window")
	ErrPriceExceeded     = errors.New("price exceeds the rider's ceiling")
	ErrInsufficientSeats = errors.New("offer has fewer seats than requested")
	ErrDuplicateOffer    = errors.New("driver already has a pending offer on this request")
	ErrNotOwner          = errors.New("caller does not own this resource")
	ErrAlreadyResolved   = errors.New("request already resolved")
	ErrOfferNotPending   = errors.New("offer is no longer pending")
	ErrNotSelectedDriver = errors.New("only the selected driver can start this trip")
	ErrInvalidState      = errors.New("invalid request state transition")
	ErrConflict          = errors.New("request state conflict")
	ErrNotVerified       = errors.New("identity verification not approved")
)

type NegotiationStore interface {
	CreateRequest(ctx context.Context, r *TripRequest) error
	GetRequest(ctx context.Context, id types.ID) (*TripRequest, error)
	ListRequestsByRider(ctx context.Context, riderID types.ID) ([]*TripRequest, error)
	// ListDueRequests returns open requests whose window ended before now.
	ListDueRequests(ctx context.Context, now time.Time) ([]*TripRequest, error)
	ListOpenRequests(ctx context.Context, limit int) ([]*TripRequest, error)
	// AddOffer inserts a pending offer while holding the request row. It returns
	// ErrRequestClosed or ErrDuplicateOffer, and whether the request moved to
	// offers_received.
	AddOffer(ctx context.Context, o *DriverOffer) (bool, error)
	GetOffer(ctx context.Context, id types.ID) (*DriverOffer, error)
	ListOffers(ctx context.Context, requestID types.ID) ([]*DriverOffer, error)
	// AcceptOffer atomically accepts the pending offer and selects its driver.
	AcceptOffer(ctx context.Context, requestID, offerID types.ID, version int) (bool, error)
	// RejectOffer moves a pending offer to rejected while its request is still open.
	RejectOffer(ctx context.Context, offerID types.ID) (bool, error)
	WithdrawOffer(ctx context.Context, offerID types.ID) (bool, error)
	// CloseRequest moves an open request to a terminal status and cancels its pending offers.
	CloseRequest(ctx context.Context, id types.ID, to RequestStatus, version int) (bool, error)
	// StartTrip inserts the trip and the rider's booking and links the trip to the request.
	StartTrip(ctx context.Context, requestID types.ID, version int, t *trip.Trip, b *booking.Booking) (bool, error)
	AppendEvent(ctx context.Context, e *RequestEvent) error
}

type TripDirectory interface {
	Get(ctx context.Context, id types.ID) (*trip.Trip, error)
	Plan(ctx context.Context, t *trip.Trip)
}

type BookingDirectory interface {
	ListByTrip(ctx context.Context, tripID types.ID) ([]*booking.Booking, error)
}

type IdentityChecker interface {
	IsApproved(ctx context.Context, userID types.ID) (bool, error)
}

// RequestIndex makes open requests discoverable by drivers near their origin.
type RequestIndex interface {
	IndexRequest(ctx context.Context, id types.ID, origin types.Point) error
	UnindexRequest(ctx context.Context, id types.ID) error
}

type Deps struct {
	Trips    TripDirectory
	Bookings BookingDirectory
	Identity IdentityChecker
	Index    RequestIndex
	Events   events.Publisher
}

type Service struct {
	store    NegotiationStore
	trips    TripDirectory
	bookings BookingDirectory
	identity IdentityChecker
	index    RequestIndex
	events   events.Publisher
	now      func() time.Time
}

func NewService(store NegotiationStore, deps Deps) *Service {
	publisher := deps.Events
	if publisher == nil {
		publisher = events.Discard
	}
	return &Service{
		store:    store,
		trips:    deps.Trips,
		bookings: deps.Bookings,
		identity: deps.Identity,
		index:    deps.Index,
		events:   publisher,
		now:      time.Now,
	}
}

type CreateRequestCommand struct {
	RiderID      types.ID
	WindowStart  time.Time
	WindowEnd    time.Time
	Seats        int
	PriceCeiling *types.Money
	Origin       types.Point
	Destination  types.Point
}

type SubmitOfferCommand struct {
	RequestID    types.ID
	DriverID     types.ID
	ProposedTime time.Time
	PricePerSeat types.Money
	Seats        int
	Vehicle      *string
}

type AcceptOfferCommand struct {
	RequestID types.ID
	OfferID   types.ID
	CallerID  types.ID
}

type RejectOfferCommand struct {
	RequestID types.ID
	OfferID   types.ID
	CallerID  types.ID
}

type WithdrawOfferCommand struct {
	RequestID types.ID
	OfferID   types.ID
	DriverID  types.ID
}

type CancelRequestCommand struct {
	RequestID types.ID
	CallerID  types.ID
}

type StartTripCommand struct {
	RequestID types.ID
	CallerID  types.ID
}

func (s *Service) CreateRequest(ctx context.Context, cmd CreateRequestCommand) (*TripRequest, error) {
	if cmd.RiderID == "" || cmd.Seats < 1 {
		return nil, ErrValidation
	}
	if cmd.WindowStart.After(cmd.WindowEnd) || cmd.WindowEnd.Before(s.now()) {
		return nil, ErrValidation
	}
	if !cmd.Origin.Valid() || !cmd.Destination.Valid() {
		return nil, ErrValidation
	}
	if cmd.PriceCeiling != nil {
		if cmd.PriceCeiling.Amount < 0 {
			return nil, ErrValidation
		}
		if cmd.PriceCeiling.Currency == "" {
			cmd.PriceCeiling.Currency = types.DefaultCurrency
		}
	}

	now := s.now()
	r := &TripRequest{
		ID:           types.NewID(),
		RiderID:      cmd.RiderID,
		WindowStart:  cmd.WindowStart,
		WindowEnd:    cmd.WindowEnd,
		Seats:        cmd.Seats,
		PriceCeiling: cmd.PriceCeiling,
		Origin:       cmd.Origin,
		Destination:  cmd.Destination,
		Status:       RequestPending,
		CreatedAt:    now,
	}
	if err := s.store.CreateRequest(ctx, r); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, r.ID, nil, RequestNone, RequestPending, "created", &cmd.RiderID)
	if s.index != nil {
		if err := s.index.IndexRequest(ctx, r.ID, r.Origin); err != nil {
			slog.WarnContext(ctx, "index open request failed", "request_id", r.ID, "error", err)
		}
	}
	events.Notify(ctx, s.events, events.Event{
		Type:    events.RequestCreated,
		Subject: r.ID,
		Data: map[string]string{
			"seats":      strconv.Itoa(r.Seats),
			"origin":     r.Origin.String(),
			"window_end": r.WindowEnd.UTC().Format(time.RFC3339),
		},
	})
	return r, nil
}

func (s *Service) GetRequest(ctx context.Context, id types.ID) (*TripRequest, error) {
	return s.store.GetRequest(ctx, id)
}

func (s *Service) ListRequestsByRider(ctx context.Context, riderID types.ID) ([]*TripRequest, error) {
	return s.store.ListRequestsByRider(ctx, riderID)
}

// ListOpen returns the oldest open requests first.
func (s *Service) ListOpen(ctx context.Context, limit int) ([]*TripRequest, error) {
	return s.store.ListOpenRequests(ctx, limit)
}

func (s *Service) ListOffers(ctx context.Context, requestID types.ID) ([]*DriverOffer, error) {
	if _, err := s.store.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return s.store.ListOffers(ctx, requestID)
}

func (s *Service) SubmitOffer(ctx context.Context, cmd SubmitOfferCommand) (*DriverOffer, error) {
	if cmd.DriverID == "" || cmd.PricePerSeat.Amount < 0 {
		return nil, ErrValidation
	}
	r, err := s.store.GetRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if !r.Open() || r.RiderID == cmd.DriverID {
		return nil, ErrRequestClosed
	}
	if !r.InWindow(cmd.ProposedTime) || cmd.ProposedTime.Before(s.now()) {
		return nil, ErrOutOfWindow
	}
	if cmd.PricePerSeat.Currency == "" {
		cmd.PricePerSeat.Currency = types.DefaultCurrency
	}
	if r.PriceCeiling != nil && cmd.PricePerSeat.Exceeds(*r.PriceCeiling) {
		return nil, ErrPriceExceeded
	}
	if cmd.Seats < r.Seats {
		return nil, ErrInsufficientSeats
	}
	if err := s.checkIdentity(ctx, cmd.DriverID); err != nil {
		return nil, err
	}

	o := &DriverOffer{
		ID:           types.NewID(),
		RequestID:    r.ID,
		DriverID:     cmd.DriverID,
		ProposedTime: cmd.ProposedTime,
		PricePerSeat: cmd.PricePerSeat,
		Seats:        cmd.Seats,
		Vehicle:      cmd.Vehicle,
		Status:       OfferPending,
		CreatedAt:    s.now(),
	}
	advanced, err := s.store.AddOffer(ctx, o)
	if err != nil {
		return nil, err
	}
	if advanced {
		s.appendEvent(ctx, r.ID, &o.ID, RequestPending, RequestOffersReceived, "offer_submitted", &cmd.DriverID)
	} else {
		s.appendEvent(ctx, r.ID, &o.ID, r.Status, r.Status, "offer_submitted", &cmd.DriverID)
	}
	events.Notify(ctx, s.events, events.Event{
		Type:       events.OfferSubmitted,
		Subject:    r.ID,
		Recipients: []types.ID{r.RiderID},
		Data: map[string]string{
			"offer_id":       string(o.ID),
			"price_per_seat": strconv.FormatInt(o.PricePerSeat.Amount, 10),
			"proposed_time":  o.ProposedTime.UTC().Format(time.RFC3339),
		},
	})
	return o, nil
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

// AcceptOffer selects the offer's driver. Sibling offers stay pending.
func (s *Service) AcceptOffer(ctx context.Context, cmd AcceptOfferCommand) (*TripRequest, *DriverOffer, error) {
	r, o, err := s.loadPair(ctx, cmd.RequestID, cmd.OfferID)
	if err != nil {
		return nil, nil, err
	}
	if r.RiderID != cmd.CallerID {
		return nil, nil, ErrNotOwner
	}
	if r.Status == RequestDriverSelected && r.AcceptedOfferID != nil && *r.AcceptedOfferID == o.ID {
		return r, o, nil
	}
	if r.Status != RequestOffersReceived {
		return nil, nil, ErrAlreadyResolved
	}
	if o.Status != OfferPending {
		return nil, nil, ErrOfferNotPending
	}
	if !r.InWindow(o.ProposedTime) {
		return nil, nil, ErrOutOfWindow
	}

	ok, err := s.store.AcceptOffer(ctx, r.ID, o.ID, r.StatusVersion)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrConflict
	}
	s.appendEvent(ctx, r.ID, &o.ID, RequestOffersReceived, RequestDriverSelected, "offer_accepted", &cmd.CallerID)
	s.unindex(ctx, r.ID)
	events.Notify(ctx, s.events, events.Event{
		Type:       events.OfferAccepted,
		Subject:    r.ID,
		Recipients: []types.ID{o.DriverID},
		Data:       map[string]string{"offer_id": string(o.ID)},
	})
	return s.reload(ctx, r.ID, o.ID)
}

func (s *Service) RejectOffer(ctx context.Context, cmd RejectOfferCommand) (*DriverOffer, error) {
	r, o, err := s.loadPair(ctx, cmd.RequestID, cmd.OfferID)
	if err != nil {
		return nil, err
	}
	if r.RiderID != cmd.CallerID {
		return nil, ErrNotOwner
	}
	if o.Status == OfferRejected {
		return o, nil
	}
	if !r.Open() {
		return nil, ErrAlreadyResolved
	}
	if o.Status != OfferPending {
		return nil, ErrOfferNotPending
	}
	ok, err := s.store.RejectOffer(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	s.appendEvent(ctx, r.ID, &o.ID, r.Status, r.Status, "offer_rejected", &cmd.CallerID)
	events.Notify(ctx, s.events, events.Event{
		Type:       events.OfferRejected,
		Subject:    r.ID,
		Recipients: []types.ID{o.DriverID},
		Data:       map[string]string{"offer_id": string(o.ID)},
	})
	return s.store.GetOffer(ctx, o.ID)
}

// WithdrawOffer lets a driver take back their own pending offer.
func (s *Service) WithdrawOffer(ctx context.Context, cmd WithdrawOfferCommand) (*DriverOffer, error) {
	r, o, err := s.loadPair(ctx, cmd.RequestID, cmd.OfferID)
	if err != nil {
		return nil, err
	}
	if o.DriverID != cmd.DriverID {
		return nil, ErrNotOwner
	}
	if o.Status == OfferCancelled {
		return o, nil
	}
	if o.Status != OfferPending {
		return nil, ErrOfferNotPending
	}
	ok, err := s.store.WithdrawOffer(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	s.appendEvent(ctx, r.ID, &o.ID, r.Status, r.Status, "offer_withdrawn", &cmd.DriverID)
	events.Notify(ctx, s.events, events.Event{
		Type:       events.OfferWithdrawn,
		Subject:    r.ID,
		Recipients: []types.ID{r.RiderID},
		Data:       map[string]string{"offer_id": string(o.ID)},
	})
	return s.store.GetOffer(ctx, o.ID)
}

// CancelRequest closes the request and invalidates its pending offers; offer records are kept.
func (s *Service) CancelRequest(ctx context.Context, cmd CancelRequestCommand) (*TripRequest, error) {
	r, err := s.store.GetRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if r.RiderID != cmd.CallerID {
		return nil, ErrNotOwner
	}
	if r.Status == RequestCancelled {
		return r, nil
	}
	if !r.Open() {
		return nil, ErrAlreadyResolved
	}
	drivers := s.pendingDrivers(ctx, r.ID)
	ok, err := s.store.CloseRequest(ctx, r.ID, RequestCancelled, r.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	s.appendEvent(ctx, r.ID, nil, r.Status, RequestCancelled, "cancelled", &cmd.CallerID)
	s.unindex(ctx, r.ID)
	events.Notify(ctx, s.events, events.Event{
		Type:       events.RequestCancelled,
		Subject:    r.ID,
		Recipients: drivers,
	})
	return s.store.GetRequest(ctx, r.ID)
}

// ExpireDue moves open requests whose window has ended to expired.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.ListDueRequests(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, r := range due {
		drivers := s.pendingDrivers(ctx, r.ID)
		ok, err := s.store.CloseRequest(ctx, r.ID, RequestExpired, r.StatusVersion)
		if err != nil {
			return expired, err
		}
		if !ok {
			continue
		}
		expired++
		s.appendEvent(ctx, r.ID, nil, r.Status, RequestExpired, "expired", nil)
		s.unindex(ctx, r.ID)
		events.Notify(ctx, s.events, events.Event{
			Type:       events.RequestExpired,
			Subject:    r.ID,
			Recipients: append([]types.ID{r.RiderID}, drivers...),
		})
	}
	return expired, nil
}

// StartTripFromAcceptedOffer creates the trip and the rider's accepted booking in
// one unit. Retrying after success returns the trip created the first time.
func (s *Service) StartTripFromAcceptedOffer(ctx context.Context, cmd StartTripCommand) (*trip.Trip, *booking.Booking, error) {
	r, err := s.store.GetRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, nil, err
	}
	if r.Status != RequestDriverSelected || r.AcceptedOfferID == nil {
		return nil, nil, ErrInvalidState
	}
	o, err := s.store.GetOffer(ctx, *r.AcceptedOfferID)
	if err != nil {
		return nil, nil, err
	}
	if o.DriverID != cmd.CallerID {
		return nil, nil, ErrNotSelectedDriver
	}
	if r.TripID != nil {
		return s.existingTrip(ctx, r)
	}

	now := s.now()
	requestID := r.ID
	t := &trip.Trip{
		ID:            types.NewID(),
		DriverID:      o.DriverID,
		Origin:        r.Origin,
		Destination:   r.Destination,
		DepartureTime: o.ProposedTime,
		Capacity:      o.Seats,
		PricePerSeat:  o.PricePerSeat,
		Status:        trip.StatusUpcoming,
		RequestID:     &requestID,
		CreatedAt:     now,
	}
	if s.trips != nil {
		s.trips.Plan(ctx, t)
	}
	origin, destination := r.Origin, r.Destination
	b := &booking.Booking{
		ID:        types.NewID(),
		TripID:    t.ID,
		RiderID:   r.RiderID,
		Seats:     r.Seats,
		Status:    booking.StatusAccepted,
		Pickup:    &origin,
		Dropoff:   &destination,
		CreatedAt: now,
		DecidedAt: &now,
	}

	ok, err := s.store.StartTrip(ctx, r.ID, r.StatusVersion, t, b)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		cur, err := s.store.GetRequest(ctx, r.ID)
		if err != nil {
			return nil, nil, err
		}
		if cur.TripID != nil {
			return s.existingTrip(ctx, cur)
		}
		return nil, nil, ErrConflict
	}
	s.appendEvent(ctx, r.ID, &o.ID, RequestDriverSelected, RequestDriverSelected, "trip_started", &cmd.CallerID)
	events.Notify(ctx, s.events, events.Event{
		Type:       events.TripCreated,
		Subject:    t.ID,
		Recipients: []types.ID{r.RiderID},
		Data:       map[string]string{"request_id": string(r.ID), "booking_id": string(b.ID)},
	})
	return t, b, nil
}

func (s *Service) existingTrip(ctx context.Context, r *TripRequest) (*trip.Trip, *booking.Booking, error) {
	if s.trips == nil || s.bookings == nil {
		return nil, nil, ErrInvalidState
	}
	t, err := s.trips.Get(ctx, *r.TripID)
	if err != nil {
		return nil, nil, err
	}
	bookings, err := s.bookings.ListByTrip(ctx, t.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, b := range bookings {
		if b.RiderID == r.RiderID {
			return t, b, nil
		}
	}
	return t, nil, nil
}

func (s *Service) loadPair(ctx context.Context, requestID, offerID types.ID) (*TripRequest, *DriverOffer, error) {
	r, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	o, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	if o.RequestID != r.ID {
		return nil, nil, ErrOfferNotFound
	}
	return r, o, nil
}

func (s *Service) reload(ctx context.Context, requestID, offerID types.ID) (*TripRequest, *DriverOffer, error) {
	r, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	o, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	return r, o, nil
}

func (s *Service) pendingDrivers(ctx context.Context, requestID types.ID) []types.ID {
	offers, err := s.store.ListOffers(ctx, requestID)
	if err != nil {
		return nil
	}
	var out []types.ID
	for _, o := range offers {
		if o.Status == OfferPending {
			out = append(out, o.DriverID)
		}
	}
	return out
}

func (s *Service) unindex(ctx context.Context, id types.ID) {
	if s.index == nil {
		return
	}
	if err := s.index.UnindexRequest(ctx, id); err != nil {
		slog.WarnContext(ctx, "unindex request failed", "request_id", id, "error", err)
	}
}

func (s *Service) appendEvent(ctx context.Context, id types.ID, offerID *types.ID, from, to RequestStatus, action string, actor *types.ID) {
	_ = s.store.AppendEvent(ctx, &RequestEvent{
		RequestID:  id,
		OfferID:    offerID,
		FromStatus: from,
		ToStatus:   to,
		Action:     action,
		ActorID:    actor,
		CreatedAt:  s.now(),
	})
}
