package geo

import (
	"math"
	"testing"

	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

func TestDistanceMeters_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantM     float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: -4.3217, Lng: 15.3125},
			b:         types.Point{Lat: -4.3217, Lng: 15.3125},
			wantM:     0,
			tolerance: 0.001,
		},
		{
			name:      "Gombe to Limete (~6km)",
			a:         types.Point{Lat: -4.3032, Lng: 15.3008},
			b:         types.Point{Lat: -4.3550, Lng: 15.3380},
			wantM:     7050,
			tolerance: 500,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			wantM:     3944000,
			tolerance: 50000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.a, tt.b)
			if math.Abs(got-tt.wantM) > tt.tolerance {
				t.Errorf("DistanceMeters() = %f, want %f (±%f)", got, tt.wantM, tt.tolerance)
			}
		})
	}
}

func TestDistanceMeters_Symmetry(t *testing.T) {
	a := types.Point{Lat: -4.30, Lng: 15.30}
	b := types.Point{Lat: -4.40, Lng: 15.25}
	if d1, d2 := DistanceMeters(a, b), DistanceMeters(b, a); math.Abs(d1-d2) > 0.0001 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestHeadingDelta(t *testing.T) {
	cases := []struct {
		from, to, want float64
	}{
		{0, 10, 10},
		{10, 0, -10},
		{350, 10, 20},
		{10, 350, -20},
		{0, 180, 180},
		{180, 0, 180},
		{-90, 90, 180},
		{720, 45, 45},
	}
	for _, tc := range cases {
		if got := HeadingDelta(tc.from, tc.to); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("HeadingDelta(%v, %v) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestNormalizeHeading(t *testing.T) {
	if got := NormalizeHeading(-10); got != 350 {
		t.Errorf("NormalizeHeading(-10) = %v", got)
	}
	if got := NormalizeHeading(370); got != 10 {
		t.Errorf("NormalizeHeading(370) = %v", got)
	}
}

func TestSortByDistance(t *testing.T) {
	type item struct {
		id string
		d  float64
	}
	items := []item{{"c", 5}, {"a", 1}, {"b", 3}}
	SortByDistance(items, func(i item) float64 { return i.d })
	if items[0].id != "a" || items[1].id != "b" || items[2].id != "c" {
		t.Errorf("unexpected sort order: %v", items)
	}
	var empty []item
	SortByDistance(empty, func(i item) float64 { return i.d })
}

func TestBearingCardinalDirections(t *testing.T) {
	origin := types.Point{}
	cases := []struct {
		to   types.Point
		want float64
	}{
		{types.Point{Lat: 1}, 0},
		{types.Point{Lng: 1}, 90},
		{types.Point{Lat: -1}, 180},
		{types.Point{Lng: -1}, 270},
	}
	for _, tc := range cases {
		if got := Bearing(origin, tc.to); math.Abs(got-tc.want) > 1e-6 {
			t.Errorf("Bearing(%v) = %v, want %v", tc.to, got, tc.want)
		}
	}
}
