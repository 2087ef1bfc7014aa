package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/net/html"
	"googlemaps.github.io/maps"

	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

var ErrNoRoute = errors.New("provider returned no route")

const ModeDriving = "driving"

type RouteRequest struct {
	Origin      types.Point
	Destination types.Point
	Waypoints   []types.Point
	Mode        string
	Optimize    bool
	Language    string
}

type ProviderStep struct {
	HTMLInstruction string
	Maneuver        string
	DistanceMeters  int
	Duration        time.Duration
	Start           types.Point
	End             types.Point
	Polyline        string
}

type ProviderLeg struct {
	DistanceMeters int
	Duration       time.Duration
	Polyline       string
	Steps          []ProviderStep
}

type ProviderRoute struct {
	OverviewPolyline string
	Legs             []ProviderLeg
}

// Provider is the external routing engine.
type Provider interface {
	Directions(ctx context.Context, req RouteRequest) ([]ProviderRoute, error)
}

func DecodePolyline(encoded string) ([]types.Point, error) {
	lls, err := maps.DecodePolyline(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	out := make([]types.Point, len(lls))
	for i, ll := range lls {
		out[i] = types.Point{Lat: ll.Lat, Lng: ll.Lng}
	}
	return out, nil
}

func EncodePolyline(points []types.Point) string {
	lls := make([]maps.LatLng, len(points))
	for i, p := range points {
		lls[i] = maps.LatLng{Lat: p.Lat, Lng: p.Lng}
	}
	return maps.Encode(lls)
}

// Simplify uniformly subsamples points down to budget, always keeping the
// first and last point.
func Simplify(points []types.Point, budget int) []types.Point {
	n := len(points)
	if budget < 2 || n <= budget {
		return append([]types.Point(nil), points...)
	}
	out := make([]types.Point, budget)
	for i := 0; i < budget; i++ {
		idx := int(math.Round(float64(i) * float64(n-1) / float64(budget-1)))
		out[i] = points[idx]
	}
	return out
}

// StripMarkup turns an HTML turn instruction into plain text.
func StripMarkup(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "div", "br", "p", "li":
				b.WriteByte(' ')
			}
		}
	}
}

// BuildRoute converts a provider route into a displayable one.
func BuildRoute(pr ProviderRoute, budget int) (*Route, error) {
	r := &Route{Available: true}
	var all []types.Point
	for _, pl := range pr.Legs {
		leg := Leg{DistanceMeters: pl.DistanceMeters, Duration: pl.Duration}
		var legPoints []types.Point
		for _, ps := range pl.Steps {
			step := Step{
				Instruction:    StripMarkup(ps.HTMLInstruction),
				Maneuver:       ps.Maneuver,
				DistanceMeters: ps.DistanceMeters,
				Duration:       ps.Duration,
				Start:          ps.Start,
				End:            ps.End,
			}
			leg.Steps = append(leg.Steps, step)
			r.Steps = append(r.Steps, step)
			if pl.Polyline == "" && ps.Polyline != "" {
				pts, err := DecodePolyline(ps.Polyline)
				if err != nil {
					return nil, err
				}
				legPoints = appendPath(legPoints, pts)
			}
		}
		if pl.Polyline != "" {
			pts, err := DecodePolyline(pl.Polyline)
			if err != nil {
				return nil, err
			}
			legPoints = pts
		}
		all = appendPath(all, legPoints)
		leg.Points = Simplify(legPoints, budget)
		r.Legs = append(r.Legs, leg)
		r.DistanceMeters += pl.DistanceMeters
		r.Duration += pl.Duration
	}
	if len(all) == 0 && pr.OverviewPolyline != "" {
		pts, err := DecodePolyline(pr.OverviewPolyline)
		if err != nil {
			return nil, err
		}
		all = pts
	}
	if len(all) < 2 {
		return nil, ErrNoRoute
	}
	r.Points = Simplify(all, budget)
	return r, nil
}

// StraightLine is the fallback drawn through the same stops when the provider
// cannot answer.
func StraightLine(stops []types.Point) *Route {
	pts := append([]types.Point(nil), stops...)
	return &Route{
		Points:    pts,
		Legs:      []Leg{{Points: pts}},
		Available: false,
	}
}

// appendPath joins two paths, dropping the shared junction point.
func appendPath(path, next []types.Point) []types.Point {
	if len(path) > 0 && len(next) > 0 && path[len(path)-1] == next[0] {
		next = next[1:]
	}
	return append(path, next...)
}
