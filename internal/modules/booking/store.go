// README: Booking store backed by PostgreSQL; acceptance locks the trip row to keep seats within capacity.
package booking

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

// Execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, b *Booking) error {
	return Insert(ctx, s.db, b)
}

func Insert(ctx context.Context, q Execer, b *Booking) error {
	pickLat, pickLng := pointArgs(b.Pickup)
	dropLat, dropLng := pointArgs(b.Dropoff)
	_, err := q.Exec(ctx, `
		INSERT INTO bookings (
			id, trip_id, rider_id, seats, status, status_version,
			pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
			created_at, decided_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12
		)`,
		string(b.ID),
		string(b.TripID),
		string(b.RiderID),
		b.Seats,
		string(b.Status),
		b.StatusVersion,
		pickLat, pickLng,
		dropLat, dropLng,
		b.CreatedAt,
		b.DecidedAt,
	)
	return err
}

const selectBooking = `
	SELECT id, trip_id, rider_id, seats, status, status_version, reject_reason,
	       pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	       driver_pickup_at, rider_pickup_at, driver_dropoff_at, rider_dropoff_at,
	       created_at, decided_at, cancelled_at, completed_at
	FROM bookings`

func (s *Store) Get(ctx context.Context, id types.ID) (*Booking, error) {
	b, err := scanBooking(s.db.QueryRow(ctx, selectBooking+` WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *Store) ListByTrip(ctx context.Context, tripID types.ID) ([]*Booking, error) {
	return s.list(ctx, selectBooking+` WHERE trip_id = $1 ORDER BY created_at ASC, id ASC`, string(tripID))
}

func (s *Store) ListByRider(ctx context.Context, riderID types.ID) ([]*Booking, error) {
	return s.list(ctx, selectBooking+` WHERE rider_id = $1 ORDER BY created_at DESC`, string(riderID))
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*Booking, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) Accept(ctx context.Context, id types.ID, version int) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var tripID string
	var seats, capacity int
	err = tx.QueryRow(ctx, `
		SELECT b.trip_id, b.seats, t.capacity
		FROM bookings b JOIN trips t ON t.id = b.trip_id
		WHERE b.id = $1 AND b.status = 'pending' AND b.status_version = $2
		FOR UPDATE OF t, b`, string(id), version,
	).Scan(&tripID, &seats, &capacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var accepted int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(seats), 0) FROM bookings
		WHERE trip_id = $1 AND status = 'accepted'`, tripID,
	).Scan(&accepted); err != nil {
		return false, err
	}
	if accepted+seats > capacity {
		return false, ErrCapacity
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = 'accepted', status_version = status_version + 1, decided_at = NOW()
		WHERE id = $1 AND status_version = $2`, string(id), version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	return true, tx.Commit(ctx)
}

func (s *Store) Update(ctx context.Context, b *Booking, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET status = $1,
		    status_version = status_version + 1,
		    reject_reason = $2,
		    driver_pickup_at = $3,
		    rider_pickup_at = $4,
		    driver_dropoff_at = $5,
		    rider_dropoff_at = $6,
		    decided_at = $7,
		    cancelled_at = $8,
		    completed_at = $9
		WHERE id = $10 AND status_version = $11`,
		string(b.Status),
		b.RejectReason,
		b.DriverPickupAt,
		b.RiderPickupAt,
		b.DriverDropoffAt,
		b.RiderDropoffAt,
		b.DecidedAt,
		b.CancelledAt,
		b.CompletedAt,
		string(b.ID),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	var actor *string
	if e.ActorID != nil {
		v := string(*e.ActorID)
		actor = &v
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO booking_events (booking_id, from_status, to_status, action, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.BookingID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.Action,
		actor,
		e.CreatedAt,
	)
	return err
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var pickLat, pickLng, dropLat, dropLng *float64
	err := row.Scan(
		&b.ID, &b.TripID, &b.RiderID, &b.Seats, &b.Status, &b.StatusVersion, &b.RejectReason,
		&pickLat, &pickLng, &dropLat, &dropLng,
		&b.DriverPickupAt, &b.RiderPickupAt, &b.DriverDropoffAt, &b.RiderDropoffAt,
		&b.CreatedAt, &b.DecidedAt, &b.CancelledAt, &b.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Pickup = toPoint(pickLat, pickLng)
	b.Dropoff = toPoint(dropLat, dropLng)
	return &b, nil
}

func pointArgs(p *types.Point) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lng := p.Lat, p.Lng
	return &lat, &lng
}

func toPoint(lat, lng *float64) *types.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &types.Point{Lat: *lat, Lng: *lng}
}
