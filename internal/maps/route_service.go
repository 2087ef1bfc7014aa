package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"github.com/GroupeBH/zwanga-sub000/internal/modules/tracking"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

var ErrNoRoute = errors.New("no route found")

// RouteService handles interactions with the Google Directions API.
type RouteService struct {
	client   *maps.Client
	region   string
	language string
}

// NewRouteService creates a new RouteService with the given API key. Region
// biases geocoding of free-text stops; language sets the turn instructions.
func NewRouteService(apiKey, region, language string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, region: region, language: language}, nil
}

// TravelEstimate returns the driving distance in meters and duration between two points.
func (s *RouteService) TravelEstimate(ctx context.Context, origin, destination types.Point) (int, time.Duration, error) {
	routes, err := s.Directions(ctx, tracking.RouteRequest{
		Origin:      origin,
		Destination: destination,
		Mode:        tracking.ModeDriving,
		Language:    s.language,
	})
	if err != nil {
		return 0, 0, err
	}
	var meters int
	var d time.Duration
	for _, leg := range routes[0].Legs {
		meters += leg.DistanceMeters
		d += leg.Duration
	}
	return meters, d, nil
}

// Directions implements tracking.Provider.
func (s *RouteService) Directions(ctx context.Context, req tracking.RouteRequest) ([]tracking.ProviderRoute, error) {
	mode := maps.TravelModeDriving
	if req.Mode != "" {
		mode = maps.Mode(req.Mode)
	}
	language := req.Language
	if language == "" {
		language = s.language
	}
	r := &maps.DirectionsRequest{
		Origin:      req.Origin.String(),
		Destination: req.Destination.String(),
		Mode:        mode,
		Optimize:    req.Optimize,
		Language:    language,
		Region:      s.region,
	}
	for _, w := range req.Waypoints {
		r.Waypoints = append(r.Waypoints, w.String())
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, ErrNoRoute
	}
	return toProviderRoutes(routes), nil
}

// toProviderRoutes keeps the leg polyline empty; callers rebuild it from the
// step polylines, which carry full resolution.
func toProviderRoutes(routes []maps.Route) []tracking.ProviderRoute {
	out := make([]tracking.ProviderRoute, 0, len(routes))
	for _, route := range routes {
		pr := tracking.ProviderRoute{OverviewPolyline: route.OverviewPolyline.Points}
		for _, leg := range route.Legs {
			if leg == nil {
				continue
			}
			pl := tracking.ProviderLeg{
				DistanceMeters: leg.Distance.Meters,
				Duration:       leg.Duration,
			}
			for _, step := range leg.Steps {
				if step == nil {
					continue
				}
				pl.Steps = append(pl.Steps, tracking.ProviderStep{
					HTMLInstruction: step.HTMLInstructions,
					DistanceMeters:  step.Distance.Meters,
					Duration:        step.Duration,
					Start:           toPoint(step.StartLocation),
					End:             toPoint(step.EndLocation),
					Polyline:        step.Polyline.Points,
				})
			}
			pr.Legs = append(pr.Legs, pl)
		}
		out = append(out, pr)
	}
	return out
}

func toPoint(ll maps.LatLng) types.Point {
	return types.Point{Lat: ll.Lat, Lng: ll.Lng}
}
