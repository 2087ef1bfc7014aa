package maps

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

const (
	searchRadiusMeters = 25000
	maxPlaces          = 5
)

// Place represents a simplified location result.
type Place struct {
	Name     string      `json:"name"`
	Address  string      `json:"address"`
	PlaceID  string      `json:"place_id"`
	Location types.Point `json:"location"`
}

// PlacesService handles interactions with Google Places API.
type PlacesService struct {
	client   *maps.Client
	region   string
	language string
}

// NewPlacesService creates a new PlacesService with the given API Key.
func NewPlacesService(apiKey, region, language string) (*PlacesService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &PlacesService{client: client, region: region, language: language}, nil
}

// Search resolves a free-text place ("Rond-point Victoire", "UPN") into
// candidate stops, biased toward near when given.
func (s *PlacesService) Search(ctx context.Context, query string, near *types.Point) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	r := &maps.TextSearchRequest{
		Query:    query,
		Language: s.language,
		Region:   s.region,
	}
	if near != nil {
		r.Location = &maps.LatLng{Lat: near.Lat, Lng: near.Lng}
		r.Radius = searchRadiusMeters
	}

	resp, err := s.client.TextSearch(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("places api error: %w", err)
	}
	return toPlaces(resp.Results), nil
}

func toPlaces(results []maps.PlacesSearchResult) []Place {
	seen := make(map[string]bool)
	var out []Place
	for _, result := range results {
		if result.PlaceID == "" || seen[result.PlaceID] {
			continue
		}
		seen[result.PlaceID] = true
		out = append(out, Place{
			Name:     result.Name,
			Address:  result.FormattedAddress,
			PlaceID:  result.PlaceID,
			Location: toPoint(result.Geometry.Location),
		})
		if len(out) >= maxPlaces {
			break
		}
	}
	return out
}
