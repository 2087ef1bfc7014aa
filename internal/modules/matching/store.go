// README: Matching store backed by Redis GEO and sets.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

const (
	requestGeoKey      = "matching:requests"
	driverGeoKey       = "matching:drivers"
	dispatchKeyPrefix  = "matching:request:%s:dispatched_at"
	notifiedKeyPrefix  = "matching:request:%s:notified"
	broadcastKeyPrefix = "matching:request:%s:broadcast"
	// TTL for dispatch and broadcast keys (request windows resolve well within 7 days).
	keyTTL = 7 * 24 * time.Hour
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) AddRequest(ctx context.Context, id types.ID, origin types.Point) error {
	return s.redis.GeoAdd(ctx, requestGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: origin.Lng,
		Latitude:  origin.Lat,
	}).Err()
}

// RemoveRequest drops the request from the index along with its dispatch bookkeeping.
func (s *Store) RemoveRequest(ctx context.Context, id types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.ZRem(ctx, requestGeoKey, string(id))
	pipe.Del(ctx, dispatchedAtKey(id), notifiedKey(id), broadcastKey(id))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) NearbyRequests(ctx context.Context, p types.Point, radiusKm float64) ([]NearbyRequest, error) {
	results, err := s.redis.GeoSearchLocation(ctx, requestGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]NearbyRequest, len(results))
	for i, r := range results {
		out[i] = NearbyRequest{ID: r.Name, DistanceMeters: r.Dist * 1000}
	}
	return out, nil
}

func (s *Store) AddDriver(ctx context.Context, id types.ID, p types.Point) error {
	return s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (s *Store) RemoveDriver(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, driverGeoKey, string(id)).Err()
}

func (s *Store) NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, driverGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

// RecordDispatch records the dispatch timestamp and the set of notified drivers for a request.
func (s *Store) RecordDispatch(ctx context.Context, requestID types.ID, driverIDs []types.ID, at time.Time) error {
	pipe := s.redis.Pipeline()
	pipe.SetNX(ctx, dispatchedAtKey(requestID), at.UTC().Format(time.RFC3339), keyTTL)
	if len(driverIDs) > 0 {
		members := make([]interface{}, len(driverIDs))
		for i, d := range driverIDs {
			members[i] = string(d)
		}
		pipe.SAdd(ctx, notifiedKey(requestID), members...)
		pipe.Expire(ctx, notifiedKey(requestID), keyTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) Notified(ctx context.Context, requestID types.ID) (map[types.ID]bool, error) {
	members, err := s.redis.SMembers(ctx, notifiedKey(requestID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[types.ID]bool, len(members))
	for _, m := range members {
		out[types.ID(m)] = true
	}
	return out, nil
}

// GetDispatchedAt returns when the request was first dispatched, and whether it has been dispatched.
func (s *Store) GetDispatchedAt(ctx context.Context, requestID types.ID) (time.Time, bool, error) {
	val, err := s.redis.Get(ctx, dispatchedAtKey(requestID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// MarkBroadcast marks a request as opened to every nearby driver.
func (s *Store) MarkBroadcast(ctx context.Context, requestID types.ID) error {
	return s.redis.Set(ctx, broadcastKey(requestID), "1", keyTTL).Err()
}

func (s *Store) IsBroadcast(ctx context.Context, requestID types.ID) (bool, error) {
	val, err := s.redis.Get(ctx, broadcastKey(requestID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "1", nil
}

func dispatchedAtKey(id types.ID) string {
	return fmt.Sprintf(dispatchKeyPrefix, string(id))
}

func notifiedKey(id types.ID) string {
	return fmt.Sprintf(notifiedKeyPrefix, string(id))
}

func broadcastKey(id types.ID) string {
	return fmt.Sprintf(broadcastKeyPrefix, string(id))
}
