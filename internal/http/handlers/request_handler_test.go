// README: Handler tests for trip requests and offers: auth, visibility and error mapping.
package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GroupeBH/zwanga-sub000/internal/http/handlers"
	"github.com/GroupeBH/zwanga-sub000/internal/infra"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/booking"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/matching"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/negotiation"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/trip"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

// stubRequests serves fixed requests and offers and records the last command.
type stubRequests struct {
	requests map[types.ID]*negotiation.TripRequest
	offers   []*negotiation.DriverOffer
	err      error

	created  *negotiation.CreateRequestCommand
	accepted *negotiation.AcceptOfferCommand
}

func (s *stubRequests) CreateRequest(_ context.Context, cmd negotiation.CreateRequestCommand) (*negotiation.TripRequest, error) {
	s.created = &cmd
	if s.err != nil {
		return nil, s.err
	}
	return &negotiation.TripRequest{ID: "req-new", RiderID: cmd.RiderID, Status: negotiation.RequestPending}, nil
}

func (s *stubRequests) GetRequest(_ context.Context, id types.ID) (*negotiation.TripRequest, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, negotiation.ErrNotFound
	}
	return r, nil
}

func (s *stubRequests) ListRequestsByRider(_ context.Context, riderID types.ID) ([]*negotiation.TripRequest, error) {
	var out []*negotiation.TripRequest
	for _, r := range s.requests {
		if r.RiderID == riderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubRequests) ListOffers(context.Context, types.ID) ([]*negotiation.DriverOffer, error) {
	return s.offers, nil
}

func (s *stubRequests) SubmitOffer(_ context.Context, cmd negotiation.SubmitOfferCommand) (*negotiation.DriverOffer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &negotiation.DriverOffer{ID: "off-new", RequestID: cmd.RequestID, DriverID: cmd.DriverID, Status: negotiation.OfferPending}, nil
}

func (s *stubRequests) AcceptOffer(_ context.Context, cmd negotiation.AcceptOfferCommand) (*negotiation.TripRequest, *negotiation.DriverOffer, error) {
	s.accepted = &cmd
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.requests[cmd.RequestID], &negotiation.DriverOffer{ID: cmd.OfferID, Status: negotiation.OfferAccepted}, nil
}

func (s *stubRequests) RejectOffer(context.Context, negotiation.RejectOfferCommand) (*negotiation.DriverOffer, error) {
	return nil, s.err
}

func (s *stubRequests) WithdrawOffer(context.Context, negotiation.WithdrawOfferCommand) (*negotiation.DriverOffer, error) {
	return nil, s.err
}

func (s *stubRequests) CancelRequest(context.Context, negotiation.CancelRequestCommand) (*negotiation.TripRequest, error) {
	return nil, s.err
}

func (s *stubRequests) StartTripFromAcceptedOffer(_ context.Context, cmd negotiation.StartTripCommand) (*trip.Trip, *booking.Booking, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return &trip.Trip{ID: "trip-1", DriverID: "driver-1"}, &booking.Booking{ID: "bk-1", TripID: "trip-1", RiderID: cmd.CallerID}, nil
}

type stubDiscovery struct {
	found []matching.NearbyRequest
	got   float64
}

func (s *stubDiscovery) Nearby(_ context.Context, _ types.Point, radiusKm float64) ([]matching.NearbyRequest, error) {
	s.got = radiusKm
	return s.found, nil
}

func buildRequestRouter(verifier infra.TokenVerifier, svc *stubRequests, discovery *stubDiscovery) *gin.Engine {
	r, api := newEngine(verifier)
	h := handlers.NewRequestHandler(svc, discovery)
	api.POST("/requests", h.Create)
	api.GET("/requests/nearby", h.Nearby)
	api.GET("/requests/:id", h.Get)
	api.GET("/requests/:id/offers", h.ListOffers)
	api.POST("/requests/:id/offers", h.SubmitOffer)
	api.POST("/requests/:id/offers/:offer_id/accept", h.AcceptOffer)
	api.POST("/requests/:id/start-trip", h.StartTrip)
	return r
}

func newStubRequests() *stubRequests {
	return &stubRequests{requests: map[types.ID]*negotiation.TripRequest{
		"req-open":   {ID: "req-open", RiderID: "rider-2", Status: negotiation.RequestPending},
		"req-own":    {ID: "req-own", RiderID: "rider-1", Status: negotiation.RequestOffersReceived},
		"req-closed": {ID: "req-closed", RiderID: "rider-3", Status: negotiation.RequestCancelled},
	}}
}

func createBody() map[string]any {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	return map[string]any{
		"window_start":  start,
		"window_end":    start.Add(time.Hour),
		"seats":         2,
		"price_ceiling": map[string]any{"amount": 5000},
		"origin":        map[string]any{"lat": -4.32, "lng": 15.31},
		"destination":   map[string]any{"lat": -4.40, "lng": 15.25},
	}
}

func TestCreateRequest_Unauthenticated(t *testing.T) {
	r := buildRequestRouter(&stubTokenVerifier{err: errors.New("no token")}, newStubRequests(), &stubDiscovery{})
	w := doRequest(r, http.MethodPost, "/api/requests", createBody(), "Bearer badtoken")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestCreateRequest_UsesCallerAndDefaultCurrency(t *testing.T) {
	svc := newStubRequests()
	r := buildRequestRouter(makeVerifier("rider-1", ""), svc, &stubDiscovery{})
	w := doRequest(r, http.MethodPost, "/api/requests", createBody(), "Bearer tok")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if svc.created == nil || svc.created.RiderID != "rider-1" {
		t.Fatalf("expected rider from token, got %+v", svc.created)
	}
	if svc.created.PriceCeiling == nil || svc.created.PriceCeiling.Currency != types.DefaultCurrency {
		t.Fatalf("expected default currency, got %+v", svc.created.PriceCeiling)
	}
}

func TestCreateRequest_ValidationMapsTo400(t *testing.T) {
	svc := newStubRequests()
	svc.err = negotiation.ErrValidation
	r := buildRequestRouter(makeVerifier("rider-1", ""), svc, &stubDiscovery{})
	w := doRequest(r, http.MethodPost, "/api/requests", createBody(), "Bearer tok")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := errorText(t, w); got != negotiation.ErrValidation.Error() {
		t.Fatalf("expected %q, got %q", negotiation.ErrValidation.Error(), got)
	}
}

func TestCreateRequest_UnknownErrorIsInternal(t *testing.T) {
	svc := newStubRequests()
	svc.err = errors.New("db down")
	r := buildRequestRouter(makeVerifier("rider-1", ""), svc, &stubDiscovery{})
	w := doRequest(r, http.MethodPost, "/api/requests", createBody(), "Bearer tok")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if got := errorText(t, w); got != "internal error" {
		t.Fatalf("expected internal error, got %q", got)
	}
}

func TestGetRequest_InvalidID(t *testing.T) {
	r := buildRequestRouter(makeVerifier("rider-1", ""), newStubRequests(), &stubDiscovery{})
	w := doRequest(r, http.MethodGet, "/api/requests/bad.id", nil, "Bearer tok")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	w = doRequest(r, http.MethodGet, "/api/requests/missing", nil, "Bearer tok")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestNearby_SkipsClosedOwnAndMissing(t *testing.T) {
	discovery := &stubDiscovery{found: []matching.NearbyRequest{
		{ID: "req-own", DistanceMeters: 100},
		{ID: "req-open", DistanceMeters: 250},
		{ID: "req-closed", DistanceMeters: 300},
		{ID: "req-gone", DistanceMeters: 400},
	}}
	r := buildRequestRouter(makeVerifier("rider-1", "driver"), newStubRequests(), discovery)
	w := doRequest(r, http.MethodGet, "/api/requests/nearby?lat=-4.32&lng=15.31", nil, "Bearer tok")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Requests []struct {
			ID       string  `json:"id"`
			Distance float64 `json:"distance_m"`
		} `json:"requests"`
	}
	decodeBody(t, w, &body)
	if len(body.Requests) != 1 || body.Requests[0].ID != "req-open" || body.Requests[0].Distance != 250 {
		t.Fatalf("unexpected nearby result: %+v", body.Requests)
	}
	if discovery.got != 0 {
		t.Fatalf("expected default radius to be delegated, got %v", discovery.got)
	}
}

func TestNearby_RejectsBadRadius(t *testing.T) {
	r := buildRequestRouter(makeVerifier("driver-1", "driver"), newStubRequests(), &stubDiscovery{})
	for _, q := range []string{"lat=1&lng=1&radius_km=0", "lat=1&lng=1&radius_km=51", "lat=100&lng=1", "lng=1"} {
		w := doRequest(r, http.MethodGet, "/api/requests/nearby?"+q, nil, "Bearer tok")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestListOffers_VisibilityByCaller(t *testing.T) {
	svc := newStubRequests()
	svc.offers = []*negotiation.DriverOffer{
		{ID: "off-1", RequestID: "req-own", DriverID: "driver-1"},
		{ID: "off-2", RequestID: "req-own", DriverID: "driver-2"},
	}

	count := func(uid string) int {
		r := buildRequestRouter(makeVerifier(uid, ""), svc, &stubDiscovery{})
		w := doRequest(r, http.MethodGet, "/api/requests/req-own/offers", nil, "Bearer tok")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var body struct {
			Offers []negotiation.DriverOffer `json:"offers"`
		}
		decodeBody(t, w, &body)
		return len(body.Offers)
	}

	if n := count("rider-1"); n != 2 {
		t.Fatalf("owner should see 2 offers, got %d", n)
	}
	if n := count("driver-1"); n != 1 {
		t.Fatalf("driver should see only their offer, got %d", n)
	}
	if n := count("stranger"); n != 0 {
		t.Fatalf("stranger should see no offers, got %d", n)
	}
	if len(svc.offers) != 2 {
		t.Fatalf("filtering must not modify the service slice")
	}
}

func TestAcceptOffer_PassesPathAndCaller(t *testing.T) {
	svc := newStubRequests()
	r := buildRequestRouter(makeVerifier("rider-1", ""), svc, &stubDiscovery{})
	w := doRequest(r, http.MethodPost, "/api/requests/req-own/offers/off-9/accept", nil, "Bearer tok")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	want := negotiation.AcceptOfferCommand{RequestID: "req-own", OfferID: "off-9", CallerID: "rider-1"}
	if svc.accepted == nil || *svc.accepted != want {
		t.Fatalf("expected %+v, got %+v", want, svc.accepted)
	}
}

func TestAcceptOffer_ErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{negotiation.ErrAlreadyResolved, http.StatusConflict},
		{negotiation.ErrNotOwner, http.StatusForbidden},
		{negotiation.ErrOfferNotFound, http.StatusNotFound},
		{negotiation.ErrOutOfWindow, http.StatusBadRequest},
	}
	for _, tc := range cases {
		svc := newStubRequests()
		svc.err = tc.err
		r := buildRequestRouter(makeVerifier("rider-1", ""), svc, &stubDiscovery{})
		w := doRequest(r, http.MethodPost, "/api/requests/req-own/offers/off-1/accept", nil, "Bearer tok")
		if w.Code != tc.want {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
	}
}

func TestStartTrip_ReturnsTripAndBooking(t *testing.T) {
	r := buildRequestRouter(makeVerifier("rider-1", ""), newStubRequests(), &stubDiscovery{})
	w := doRequest(r, http.MethodPost, "/api/requests/req-own/start-trip", nil, "Bearer tok")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Trip    trip.Trip       `json:"trip"`
		Booking booking.Booking `json:"booking"`
	}
	decodeBody(t, w, &body)
	if body.Trip.ID != "trip-1" || body.Booking.RiderID != "rider-1" {
		t.Fatalf("unexpected body: %+v", body)
	}
}
