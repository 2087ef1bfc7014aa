package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/modules/booking"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/trip"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

// apiClient talks to the REST side of the API with a fixed ID token. It
// doubles as the coordinator's progress reporter.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{baseURL: baseURL, token: token, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *apiClient) Trip(ctx context.Context, id types.ID) (*trip.Trip, error) {
	var t trip.Trip
	if err := c.do(ctx, http.MethodGet, "/api/trips/"+string(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *apiClient) Bookings(ctx context.Context, tripID types.ID) ([]*booking.Booking, error) {
	var body struct {
		Bookings []*booking.Booking `json:"bookings"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/trips/"+string(tripID)+"/bookings", nil, &body); err != nil {
		return nil, err
	}
	return body.Bookings, nil
}

func (c *apiClient) ReportProgress(ctx context.Context, tripID types.ID, progress int) error {
	return c.do(ctx, http.MethodPut, "/api/trips/"+string(tripID)+"/progress", map[string]int{"progress": progress}, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
