// README: Trip store backed by PostgreSQL.
package trip

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

// Execer is satisfied by both *pgxpool.Pool and pgx.Tx so trips can be
// inserted as part of a wider transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, t *Trip) error {
	return Insert(ctx, s.db, t)
}

func Insert(ctx context.Context, q Execer, t *Trip) error {
	_, err := q.Exec(ctx, `
		INSERT INTO trips (
			id, driver_id, origin_lat, origin_lng, destination_lat, destination_lng,
			departure_time, capacity, price_amount, price_currency,
			status, status_version, progress, planned_distance_m, planned_duration_s,
			request_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17
		)`,
		string(t.ID),
		string(t.DriverID),
		t.Origin.Lat, t.Origin.Lng,
		t.Destination.Lat, t.Destination.Lng,
		t.DepartureTime,
		t.Capacity,
		t.PricePerSeat.Amount,
		t.PricePerSeat.Currency,
		string(t.Status),
		t.StatusVersion,
		t.Progress,
		t.PlannedDistanceMeters,
		int64(t.PlannedDuration/time.Second),
		toStringPtr(t.RequestID),
		t.CreatedAt,
	)
	return err
}

const selectTrip = `
	SELECT id, driver_id, origin_lat, origin_lng, destination_lat, destination_lng,
	       departure_time, capacity, price_amount, price_currency,
	       status, status_version, progress, planned_distance_m, planned_duration_s,
	       request_id, created_at, started_at, completed_at, cancelled_at
	FROM trips`

func (s *Store) Get(ctx context.Context, id types.ID) (*Trip, error) {
	t, err := scanTrip(s.db.QueryRow(ctx, selectTrip+` WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *Store) ListByDriver(ctx context.Context, driverID types.ID) ([]*Trip, error) {
	rows, err := s.db.Query(ctx, selectTrip+` WHERE driver_id = $1 ORDER BY departure_time DESC`, string(driverID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE trips
		SET status = $1,
		    status_version = status_version + 1,
		    progress = CASE WHEN $1 = 'ongoing' THEN 0 WHEN $1 IN ('completed','cancelled') THEN NULL ELSE progress END,
		    started_at = CASE WHEN $1 = 'ongoing' THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to),
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateProgress does not bump status_version; progress is not a status change.
func (s *Store) UpdateProgress(ctx context.Context, id types.ID, progress int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE trips SET progress = $1
		WHERE id = $2 AND status = 'ongoing'`,
		progress, string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trip_events (trip_id, from_status, to_status, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(e.TripID),
		string(e.FromStatus),
		string(e.ToStatus),
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func scanTrip(row pgx.Row) (*Trip, error) {
	var t Trip
	var requestID *string
	var durationSec int64
	err := row.Scan(
		&t.ID, &t.DriverID,
		&t.Origin.Lat, &t.Origin.Lng, &t.Destination.Lat, &t.Destination.Lng,
		&t.DepartureTime, &t.Capacity, &t.PricePerSeat.Amount, &t.PricePerSeat.Currency,
		&t.Status, &t.StatusVersion, &t.Progress, &t.PlannedDistanceMeters, &durationSec,
		&requestID, &t.CreatedAt, &t.StartedAt, &t.CompletedAt, &t.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	t.PlannedDuration = time.Duration(durationSec) * time.Second
	if requestID != nil {
		id := types.ID(*requestID)
		t.RequestID = &id
	}
	return &t, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
