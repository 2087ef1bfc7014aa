// README: Position store: last known position and fan-out in Redis, snapshots in Postgres.
package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

const (
	lastKeyPrefix    = "position:trip:%s:last"
	channelKeyPrefix = "position:trip:%s:updates"
	lastTTL          = 6 * time.Hour
)

// Subscription delivers positions published for one trip until closed.
type Subscription interface {
	Positions() <-chan Live
	Close() error
}

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

func (s *Store) SetLast(ctx context.Context, l Live) error {
	fields := map[string]any{
		"driver_id": string(l.DriverID),
		"lat":       strconv.FormatFloat(l.Point.Lat, 'f', -1, 64),
		"lng":       strconv.FormatFloat(l.Point.Lng, 'f', -1, 64),
		"at":        l.At.UTC().Format(time.RFC3339Nano),
	}
	if l.Heading != nil {
		fields["heading"] = strconv.FormatFloat(*l.Heading, 'f', -1, 64)
	}
	key := lastKey(l.TripID)
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, lastTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) GetLast(ctx context.Context, tripID types.ID) (*Live, error) {
	vals, err := s.redis.HGetAll(ctx, lastKey(tripID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrNoPosition
	}
	l := Live{TripID: tripID, DriverID: types.ID(vals["driver_id"])}
	if l.Point.Lat, err = strconv.ParseFloat(vals["lat"], 64); err != nil {
		return nil, fmt.Errorf("parse lat: %w", err)
	}
	if l.Point.Lng, err = strconv.ParseFloat(vals["lng"], 64); err != nil {
		return nil, fmt.Errorf("parse lng: %w", err)
	}
	if l.At, err = time.Parse(time.RFC3339Nano, vals["at"]); err != nil {
		return nil, fmt.Errorf("parse at: %w", err)
	}
	if h, ok := vals["heading"]; ok {
		v, err := strconv.ParseFloat(h, 64)
		if err != nil {
			return nil, fmt.Errorf("parse heading: %w", err)
		}
		l.Heading = &v
	}
	return &l, nil
}

func (s *Store) Publish(ctx context.Context, l Live) error {
	payload, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return s.redis.Publish(ctx, channelKey(l.TripID), payload).Err()
}

// Subscribe listens on the trip's channel. The subscription is confirmed
// before returning so no publish after Subscribe is missed.
func (s *Store) Subscribe(ctx context.Context, tripID types.ID) (Subscription, error) {
	ps := s.redis.Subscribe(ctx, channelKey(tripID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	sub := &redisSubscription{ps: ps, out: make(chan Live, 16)}
	go sub.pump()
	return sub, nil
}

func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO position_snapshots (trip_id, driver_id, lat, lng, heading, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(snap.TripID),
		string(snap.DriverID),
		snap.Position.Lat,
		snap.Position.Lng,
		snap.Heading,
		snap.RecordedAt,
	)
	return err
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan Live
}

func (r *redisSubscription) pump() {
	defer close(r.out)
	for msg := range r.ps.Channel() {
		var l Live
		if err := json.Unmarshal([]byte(msg.Payload), &l); err != nil {
			slog.Warn("drop malformed position payload", "channel", msg.Channel, "error", err)
			continue
		}
		r.out <- l
	}
}

func (r *redisSubscription) Positions() <-chan Live { return r.out }

func (r *redisSubscription) Close() error {
	err := r.ps.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

func lastKey(id types.ID) string {
	return fmt.Sprintf(lastKeyPrefix, string(id))
}

func channelKey(id types.ID) string {
	return fmt.Sprintf(channelKeyPrefix, string(id))
}
