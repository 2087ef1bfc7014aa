// README: Live trip positions: websocket messages, last known positions and persisted snapshots.
package position

import (
	"time"

	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

// Message types exchanged on the live channel.
const (
	MsgJoin            = "join"
	MsgLeave           = "leave"
	MsgUpdatePosition  = "update_position"
	MsgRequestPosition = "request_position"
	MsgPositionChanged = "position_changed"
	MsgError           = "error"
)

type Message struct {
	Type      string     `json:"type"`
	TripID    types.ID   `json:"trip_id,omitempty"`
	Lat       float64    `json:"lat,omitempty"`
	Lng       float64    `json:"lng,omitempty"`
	Heading   *float64   `json:"heading,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Live is the last known position of a trip's vehicle.
type Live struct {
	TripID   types.ID    `json:"trip_id"`
	DriverID types.ID    `json:"driver_id"`
	Point    types.Point `json:"point"`
	Heading  *float64    `json:"heading,omitempty"`
	At       time.Time   `json:"at"`
}

func (l Live) Message() Message {
	at := l.At
	return Message{
		Type:      MsgPositionChanged,
		TripID:    l.TripID,
		Lat:       l.Point.Lat,
		Lng:       l.Point.Lng,
		Heading:   l.Heading,
		Timestamp: &at,
	}
}

type Snapshot struct {
	ID         int64
	TripID     types.ID
	DriverID   types.ID
	Position   types.Point
	Heading    *float64
	RecordedAt time.Time
}

type Role string

const (
	RoleDriver Role = "driver"
	RoleRider  Role = "rider"
)
