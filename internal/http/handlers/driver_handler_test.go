package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/GroupeBH/zwanga-sub000/internal/http/handlers"
	"github.com/GroupeBH/zwanga-sub000/internal/maps"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/assistant"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type stubAvailability struct {
	available map[types.ID]types.Point
}

func (s *stubAvailability) SetDriverAvailable(_ context.Context, id types.ID, p types.Point) error {
	s.available[id] = p
	return nil
}

func (s *stubAvailability) SetDriverUnavailable(_ context.Context, id types.ID) error {
	delete(s.available, id)
	return nil
}

func TestDriverAvailability(t *testing.T) {
	idx := &stubAvailability{available: map[types.ID]types.Point{}}

	r, api := newEngine(makeVerifier("rider-1", ""))
	api.PUT("/drivers/me/availability", handlers.NewDriverHandler(idx).SetAvailability)
	w := doRequest(r, http.MethodPut, "/api/drivers/me/availability", map[string]any{"available": true, "lat": 1, "lng": 1}, "Bearer tok")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-driver, got %d", w.Code)
	}

	r, api = newEngine(makeVerifier("driver-1", "driver"))
	api.PUT("/drivers/me/availability", handlers.NewDriverHandler(idx).SetAvailability)

	w = doRequest(r, http.MethodPut, "/api/drivers/me/availability", map[string]any{"available": true}, "Bearer tok")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without coordinates, got %d", w.Code)
	}

	w = doRequest(r, http.MethodPut, "/api/drivers/me/availability", map[string]any{"available": true, "lat": -4.32, "lng": 15.31}, "Bearer tok")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if p, ok := idx.available["driver-1"]; !ok || p.Lat != -4.32 {
		t.Fatalf("driver not indexed: %+v", idx.available)
	}

	w = doRequest(r, http.MethodPut, "/api/drivers/me/availability", map[string]any{"available": false}, "Bearer tok")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, ok := idx.available["driver-1"]; ok {
		t.Fatal("driver should have been removed")
	}
}

type stubPlaces struct {
	near *types.Point
	err  error
}

func (s *stubPlaces) Search(_ context.Context, q string, near *types.Point) ([]maps.Place, error) {
	s.near = near
	if s.err != nil {
		return nil, s.err
	}
	return []maps.Place{{Name: q, PlaceID: "p1"}}, nil
}

func TestPlacesSearch(t *testing.T) {
	places := &stubPlaces{}
	r, api := newEngine(makeVerifier("rider-1", ""))
	api.GET("/places", handlers.NewPlacesHandler(places).Search)

	if w := doRequest(r, http.MethodGet, "/api/places", nil, "Bearer tok"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without q, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/places?q=gombe&lat=1", nil, "Bearer tok"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for half a coordinate, got %d", w.Code)
	}

	w := doRequest(r, http.MethodGet, "/api/places?q=gombe&lat=-4.3&lng=15.3", nil, "Bearer tok")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if places.near == nil || places.near.Lng != 15.3 {
		t.Fatalf("expected bias point, got %+v", places.near)
	}

	places.err = errors.New("upstream")
	if w := doRequest(r, http.MethodGet, "/api/places?q=gombe", nil, "Bearer tok"); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

type stubAssistant struct {
	cmd assistant.DraftCommand
	err error
}

func (s *stubAssistant) Draft(_ context.Context, cmd assistant.DraftCommand) (*assistant.Draft, error) {
	s.cmd = cmd
	if s.err != nil {
		return nil, s.err
	}
	return &assistant.Draft{DestinationText: "Gombe", Reply: "ok"}, nil
}

func TestAssistantDraft(t *testing.T) {
	svc := &stubAssistant{}
	r, api := newEngine(makeVerifier("rider-1", ""))
	api.POST("/assistant/draft", handlers.NewAssistantHandler(svc).Draft)

	w := doRequest(r, http.MethodPost, "/api/assistant/draft", map[string]any{"message": "Gombe at 8", "lat": -4.3, "lng": 15.3}, "Bearer tok")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.cmd.UserID != "rider-1" || svc.cmd.Near == nil {
		t.Fatalf("unexpected command: %+v", svc.cmd)
	}

	svc.err = assistant.ErrQuotaExhausted
	w = doRequest(r, http.MethodPost, "/api/assistant/draft", map[string]any{"message": "again"}, "Bearer tok")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestAssistantDraft_NotConfigured(t *testing.T) {
	r, api := newEngine(makeVerifier("rider-1", ""))
	api.POST("/assistant/draft", handlers.NewAssistantHandler(nil).Draft)
	w := doRequest(r, http.MethodPost, "/api/assistant/draft", map[string]any{"message": "hi"}, "Bearer tok")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
