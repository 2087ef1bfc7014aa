// README: Live tracking session types: positions, derived waypoints, routes and the events raised to the UI layer.
package tracking

import (
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/config"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type Role string

const (
	RoleDriver   Role = "driver"
	RoleObserver Role = "observer"
)

// Position is the session's last known vehicle state. At is the event clock
// every throttle is compared against.
type Position struct {
	Point   types.Point `json:"point"`
	Heading float64     `json:"heading"`
	Speed   float64     `json:"speed"`
	At      time.Time   `json:"at"`
}

// RemotePosition is a position broadcast by another participant of the trip.
type RemotePosition struct {
	TripID  types.ID    `json:"trip_id"`
	Point   types.Point `json:"point"`
	Heading *float64    `json:"heading,omitempty"`
	At      time.Time   `json:"timestamp"`
}

type WaypointKind string

const (
	WaypointPickup  WaypointKind = "pickup"
	WaypointDropoff WaypointKind = "dropoff"
)

type Waypoint struct {
	BookingID types.ID     `json:"booking_id"`
	RiderID   types.ID     `json:"rider_id"`
	Kind      WaypointKind `json:"kind"`
	Point     types.Point  `json:"point"`
	Resolved  bool         `json:"resolved"`
	Active    bool         `json:"active"`
}

func (w Waypoint) key() string {
	return string(w.BookingID) + "/" + string(w.Kind)
}

type Step struct {
	Instruction    string        `json:"instruction"`
	Maneuver       string        `json:"maneuver,omitempty"`
	DistanceMeters int           `json:"distance_m"`
	Duration       time.Duration `json:"duration"`
	Start          types.Point   `json:"start"`
	End            types.Point   `json:"end"`
}

type Leg struct {
	DistanceMeters int           `json:"distance_m"`
	Duration       time.Duration `json:"duration"`
	Points         []types.Point `json:"points"`
	Steps          []Step        `json:"steps"`
}

// Route is what the session displays. Available is false for the straight-line
// fallback, in which case distance and duration are unknown.
type Route struct {
	Token          uint64        `json:"token"`
	Points         []types.Point `json:"points"`
	Legs           []Leg         `json:"legs"`
	Steps          []Step        `json:"steps"`
	DistanceMeters int           `json:"distance_m"`
	Duration       time.Duration `json:"duration"`
	Available      bool          `json:"available"`
}

type EventKind string

const (
	EventRouteUpdated    EventKind = "route_updated"
	EventETAUpdated      EventKind = "eta_updated"
	EventWaypointNearby  EventKind = "waypoint_nearby"
	EventStepAdvanced    EventKind = "step_advanced"
	EventPositionUpdated EventKind = "position_updated"
)

type Event struct {
	Kind     EventKind     `json:"kind"`
	Position *Position     `json:"position,omitempty"`
	Route    *Route        `json:"route,omitempty"`
	Waypoint *Waypoint     `json:"waypoint,omitempty"`
	Step     *Step         `json:"step,omitempty"`
	ETA      time.Duration `json:"eta,omitempty"`
	Progress int           `json:"progress,omitempty"`
	// Estimated is set when the ETA comes from linear scaling instead of a route.
	Estimated bool `json:"estimated,omitempty"`
}

// Listener receives session events on the coordinator goroutine.
type Listener interface {
	HandleEvent(Event)
}

type ListenerFunc func(Event)

func (f ListenerFunc) HandleEvent(e Event) { f(e) }

const (
	defaultLocalInterval     = time.Second
	defaultBroadcastInterval = 5 * time.Second
	defaultRecheckInterval   = 10 * time.Second
	defaultRouteCooldown     = 30 * time.Second
	defaultProximityMeters   = 50
	defaultStepAdvanceMeters = 30
	defaultPointBudget       = 200
	defaultLanguage          = "fr"
)

func withDefaults(cfg config.TrackingConfig) config.TrackingConfig {
	if cfg.LocalInterval <= 0 {
		cfg.LocalInterval = defaultLocalInterval
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = defaultBroadcastInterval
	}
	if cfg.RecheckInterval <= 0 {
		cfg.RecheckInterval = defaultRecheckInterval
	}
	if cfg.RouteCooldown <= 0 {
		cfg.RouteCooldown = defaultRouteCooldown
	}
	if cfg.ProximityMeters <= 0 {
		cfg.ProximityMeters = defaultProximityMeters
	}
	if cfg.StepAdvanceMeters <= 0 {
		cfg.StepAdvanceMeters = defaultStepAdvanceMeters
	}
	if cfg.PointBudget < 2 {
		cfg.PointBudget = defaultPointBudget
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	return cfg
}
