package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GroupeBH/zwanga-sub000/internal/http/handlers"
	"github.com/GroupeBH/zwanga-sub000/internal/infra"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/trip"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

func buildTripRouter(verifier infra.TokenVerifier, svc *stubTrips) *gin.Engine {
	r, api := newEngine(verifier)
	h := handlers.NewTripHandler(svc)
	api.POST("/trips", h.Create)
	api.GET("/trips", h.ListMine)
	api.GET("/trips/:id", h.Get)
	api.POST("/trips/:id/start", h.Start)
	api.POST("/trips/:id/complete", h.Complete)
	api.POST("/trips/:id/cancel", h.Cancel)
	api.PUT("/trips/:id/progress", h.UpdateProgress)
	return r
}

func TestTripCreate(t *testing.T) {
	r := buildTripRouter(makeVerifier("driver-1", "driver"), &stubTrips{})
	w := doRequest(r, http.MethodPost, "/api/trips", map[string]any{
		"origin":         map[string]any{"lat": -4.32, "lng": 15.31},
		"destination":    map[string]any{"lat": -4.40, "lng": 15.25},
		"departure_time": time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		"capacity":       3,
		"price_per_seat": map[string]any{"amount": 2000},
	}, "Bearer tok")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var got trip.Trip
	decodeBody(t, w, &got)
	if got.DriverID != "driver-1" || got.PricePerSeat.Currency != types.DefaultCurrency {
		t.Fatalf("unexpected trip: %+v", got)
	}
}

func TestTripCreate_MissingDeparture(t *testing.T) {
	r := buildTripRouter(makeVerifier("driver-1", "driver"), &stubTrips{})
	w := doRequest(r, http.MethodPost, "/api/trips", map[string]any{"capacity": 3}, "Bearer tok")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestTripTransitionsUseCaller(t *testing.T) {
	for path, want := range map[string]trip.Status{
		"start":    trip.StatusOngoing,
		"complete": trip.StatusCompleted,
		"cancel":   trip.StatusCancelled,
	} {
		svc := &stubTrips{}
		r := buildTripRouter(makeVerifier("driver-1", ""), svc)
		w := doRequest(r, http.MethodPost, "/api/trips/trip-1/"+path, nil, "Bearer tok")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		var got trip.Trip
		decodeBody(t, w, &got)
		if got.Status != want || svc.transition.DriverID != "driver-1" || svc.transition.TripID != "trip-1" {
			t.Fatalf("%s: unexpected result %+v / %+v", path, got, svc.transition)
		}
	}
}

func TestTripTransitionErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{trip.ErrNotDriver, http.StatusForbidden},
		{trip.ErrInvalidState, http.StatusConflict},
		{trip.ErrNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		r := buildTripRouter(makeVerifier("rider-1", ""), &stubTrips{err: tc.err})
		w := doRequest(r, http.MethodPost, "/api/trips/trip-1/start", nil, "Bearer tok")
		if w.Code != tc.want {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
	}
}

func TestTripProgress(t *testing.T) {
	svc := &stubTrips{}
	r := buildTripRouter(makeVerifier("driver-1", ""), svc)

	w := doRequest(r, http.MethodPut, "/api/trips/trip-1/progress", map[string]any{}, "Bearer tok")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without progress, got %d", w.Code)
	}

	w = doRequest(r, http.MethodPut, "/api/trips/trip-1/progress", map[string]any{"progress": 140}, "Bearer tok")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got trip.Trip
	decodeBody(t, w, &got)
	if got.Progress == nil || *got.Progress != 100 {
		t.Fatalf("expected clamped progress, got %v", got.Progress)
	}
	if svc.progress.DriverID != "driver-1" {
		t.Fatalf("expected caller as driver, got %+v", svc.progress)
	}
}
