// README: Negotiation store backed by PostgreSQL; offer submission and acceptance lock the request row.
package negotiation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GroupeBH/zwanga-sub000/internal/modules/booking"
	"github.com/GroupeBH/zwanga-sub000/internal/modules/trip"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) CreateRequest(ctx context.Context, r *TripRequest) error {
	var ceilAmount *int64
	var ceilCurrency *string
	if r.PriceCeiling != nil {
		ceilAmount = &r.PriceCeiling.Amount
		ceilCurrency = &r.PriceCeiling.Currency
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO trip_requests (
			id, rider_id, window_start, window_end, seats,
			price_ceiling_amount, price_ceiling_currency,
			origin_lat, origin_lng, destination_lat, destination_lng,
			status, status_version, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11,
			$12, $13, $14
		)`,
		string(r.ID),
		string(r.RiderID),
		r.WindowStart,
		r.WindowEnd,
		r.Seats,
		ceilAmount,
		ceilCurrency,
		r.Origin.Lat, r.Origin.Lng,
		r.Destination.Lat, r.Destination.Lng,
		string(r.Status),
		r.StatusVersion,
		r.CreatedAt,
	)
	return err
}

const selectRequest = `
	SELECT id, rider_id, window_start, window_end, seats,
	       price_ceiling_amount, price_ceiling_currency,
	       origin_lat, origin_lng, destination_lat, destination_lng,
	       status, status_version, accepted_offer_id, trip_id,
	       created_at, resolved_at, cancelled_at
	FROM trip_requests`

func (s *Store) GetRequest(ctx context.Context, id types.ID) (*TripRequest, error) {
	r, err := scanRequest(s.db.QueryRow(ctx, selectRequest+` WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *Store) ListRequestsByRider(ctx context.Context, riderID types.ID) ([]*TripRequest, error) {
	return s.listRequests(ctx, selectRequest+` WHERE rider_id = $1 ORDER BY created_at DESC`, string(riderID))
}

func (s *Store) ListDueRequests(ctx context.Context, now time.Time) ([]*TripRequest, error) {
	return s.listRequests(ctx, selectRequest+`
		WHERE status IN ('pending', 'offers_received') AND window_end < $1
		ORDER BY window_end ASC
		LIMIT 500`, now)
}

func (s *Store) ListOpenRequests(ctx context.Context, limit int) ([]*TripRequest, error) {
	return s.listRequests(ctx, selectRequest+`
		WHERE status IN ('pending', 'offers_received')
		ORDER BY created_at ASC
		LIMIT $1`, limit)
}

func (s *Store) listRequests(ctx context.Context, query string, args ...any) ([]*TripRequest, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TripRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// lockOpenRequest returns the request status when the row is open, holding it until the tx ends.
func lockOpenRequest(ctx context.Context, tx pgx.Tx, id types.ID) (RequestStatus, bool, error) {
	var status RequestStatus
	err := tx.QueryRow(ctx, `
		SELECT status FROM trip_requests WHERE id = $1 FOR UPDATE`, string(id),
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, ErrNotFound
	}
	if err != nil {
		return "", false, err
	}
	return status, status == RequestPending || status == RequestOffersReceived, nil
}

func (s *Store) AddOffer(ctx context.Context, o *DriverOffer) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	status, open, err := lockOpenRequest(ctx, tx, o.RequestID)
	if err != nil {
		return false, err
	}
	if !open {
		return false, ErrRequestClosed
	}

	var dup bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM driver_offers
			WHERE request_id = $1 AND driver_id = $2 AND status = 'pending'
		)`, string(o.RequestID), string(o.DriverID),
	).Scan(&dup); err != nil {
		return false, err
	}
	if dup {
		return false, ErrDuplicateOffer
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO driver_offers (
			id, request_id, driver_id, proposed_time,
			price_amount, price_currency, seats, vehicle, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(o.ID),
		string(o.RequestID),
		string(o.DriverID),
		o.ProposedTime,
		o.PricePerSeat.Amount,
		o.PricePerSeat.Currency,
		o.Seats,
		o.Vehicle,
		string(o.Status),
		o.CreatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, ErrDuplicateOffer
		}
		return false, err
	}

	advanced := false
	if status == RequestPending {
		if _, err := tx.Exec(ctx, `
			UPDATE trip_requests
			SET status = 'offers_received', status_version = status_version + 1
			WHERE id = $1`, string(o.RequestID),
		); err != nil {
			return false, err
		}
		advanced = true
	}
	return advanced, tx.Commit(ctx)
}

const selectOffer = `
	SELECT id, request_id, driver_id, proposed_time, price_amount, price_currency,
	       seats, vehicle, status, created_at, responded_at
	FROM driver_offers`

func (s *Store) GetOffer(ctx context.Context, id types.ID) (*DriverOffer, error) {
	o, err := scanOffer(s.db.QueryRow(ctx, selectOffer+` WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOfferNotFound
	}
	return o, err
}

func (s *Store) ListOffers(ctx context.Context, requestID types.ID) ([]*DriverOffer, error) {
	rows, err := s.db.Query(ctx, selectOffer+` WHERE request_id = $1 ORDER BY created_at ASC, id ASC`, string(requestID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DriverOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) AcceptOffer(ctx context.Context, requestID, offerID types.ID, version int) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE trip_requests
		SET status = 'driver_selected', status_version = status_version + 1,
		    accepted_offer_id = $2, resolved_at = NOW()
		WHERE id = $1 AND status = 'offers_received' AND status_version = $3`,
		string(requestID), string(offerID), version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE driver_offers
		SET status = 'accepted', responded_at = NOW()
		WHERE id = $1 AND request_id = $2 AND status = 'pending'`,
		string(offerID), string(requestID),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	return true, tx.Commit(ctx)
}

func (s *Store) RejectOffer(ctx context.Context, offerID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE driver_offers o
		SET status = 'rejected', responded_at = NOW()
		FROM trip_requests r
		WHERE o.id = $1 AND o.status = 'pending'
		  AND r.id = o.request_id AND r.status IN ('pending', 'offers_received')`,
		string(offerID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) WithdrawOffer(ctx context.Context, offerID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE driver_offers
		SET status = 'cancelled', responded_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		string(offerID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CloseRequest(ctx context.Context, id types.ID, to RequestStatus, version int) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE trip_requests
		SET status = $2, status_version = status_version + 1,
		    resolved_at = NOW(),
		    cancelled_at = CASE WHEN $2 = 'cancelled' THEN NOW() ELSE cancelled_at END
		WHERE id = $1 AND status IN ('pending', 'offers_received') AND status_version = $3`,
		string(id), string(to), version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE driver_offers
		SET status = 'cancelled', responded_at = NOW()
		WHERE request_id = $1 AND status = 'pending'`, string(id),
	); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *Store) StartTrip(ctx context.Context, requestID types.ID, version int, t *trip.Trip, b *booking.Booking) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE trip_requests
		SET trip_id = $2
		WHERE id = $1 AND status = 'driver_selected' AND trip_id IS NULL AND status_version = $3`,
		string(requestID), string(t.ID), version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	// trip_requests.trip_id is not a foreign key, so the request row can be
	// claimed before the trip exists inside the same tx.
	if err := trip.Insert(ctx, tx, t); err != nil {
		return false, err
	}
	if err := booking.Insert(ctx, tx, b); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO trip_events (trip_id, from_status, to_status, actor_id, created_at)
		VALUES ($1, 'none', $2, $3, $4)`,
		string(t.ID), string(t.Status), string(t.DriverID), t.CreatedAt,
	); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO booking_events (booking_id, from_status, to_status, action, actor_id, created_at)
		VALUES ($1, 'none', $2, 'accepted_offer', $3, $4)`,
		string(b.ID), string(b.Status), string(t.DriverID), b.CreatedAt,
	); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *Store) AppendEvent(ctx context.Context, e *RequestEvent) error {
	var offer, actor *string
	if e.OfferID != nil {
		v := string(*e.OfferID)
		offer = &v
	}
	if e.ActorID != nil {
		v := string(*e.ActorID)
		actor = &v
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO request_events (request_id, offer_id, from_status, to_status, action, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.RequestID),
		offer,
		string(e.FromStatus),
		string(e.ToStatus),
		e.Action,
		actor,
		e.CreatedAt,
	)
	return err
}

func scanRequest(row pgx.Row) (*TripRequest, error) {
	var r TripRequest
	var ceilAmount *int64
	var ceilCurrency *string
	err := row.Scan(
		&r.ID, &r.RiderID, &r.WindowStart, &r.WindowEnd, &r.Seats,
		&ceilAmount, &ceilCurrency,
		&r.Origin.Lat, &r.Origin.Lng, &r.Destination.Lat, &r.Destination.Lng,
		&r.Status, &r.StatusVersion, &r.AcceptedOfferID, &r.TripID,
		&r.CreatedAt, &r.ResolvedAt, &r.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if ceilAmount != nil {
		r.PriceCeiling = &types.Money{Amount: *ceilAmount}
		if ceilCurrency != nil {
			r.PriceCeiling.Currency = *ceilCurrency
		}
	}
	return &r, nil
}

func scanOffer(row pgx.Row) (*DriverOffer, error) {
	var o DriverOffer
	err := row.Scan(
		&o.ID, &o.RequestID, &o.DriverID, &o.ProposedTime,
		&o.PricePerSeat.Amount, &o.PricePerSeat.Currency,
		&o.Seats, &o.Vehicle, &o.Status, &o.CreatedAt, &o.RespondedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
