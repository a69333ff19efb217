package driver

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofrs/uuid"
)

// LocationStore keeps the last known position of each driver.
type LocationStore interface {
	Save(ctx context.Context, loc Location) error
	Get(ctx context.Context, driverID uuid.UUID) (*Location, error)
}

type redisLocationStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocationStore(rdb *redis.Client, ttl time.Duration) LocationStore {
	return &redisLocationStore{rdb: rdb, ttl: ttl}
}

func locationKey(driverID uuid.UUID) string {
	return "driver:" + driverID.String() + ":location"
}

func (s *redisLocationStore) Save(ctx context.Context, loc Location) error {
	key := locationKey(loc.DriverID)

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"latitude":   strconv.FormatFloat(loc.Latitude, 'f', -1, 64),
		"longitude":  strconv.FormatFloat(loc.Longitude, 'f', -1, 64),
		"updated_at": loc.UpdatedAt.Unix(),
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("location: failed to save driver %s: %w", loc.DriverID, err)
	}
	return nil
}

func (s *redisLocationStore) Get(ctx context.Context, driverID uuid.UUID) (*Location, error) {
	fields, err := s.rdb.HGetAll(ctx, locationKey(driverID)).Result()
	if err != nil {
		return nil, fmt.Errorf("location: failed to read driver %s: %w", driverID, err)
	}
	if len(fields) == 0 {
		return nil, ErrLocationNotFound
	}

	lat, err := strconv.ParseFloat(fields["latitude"], 64)
	if err != nil {
		return nil, fmt.Errorf("location: bad latitude for driver %s: %w", driverID, err)
	}
	lng, err := strconv.ParseFloat(fields["longitude"], 64)
	if err != nil {
		return nil, fmt.Errorf("location: bad longitude for driver %s: %w", driverID, err)
	}
	ts, _ := strconv.ParseInt(fields["updated_at"], 10, 64)

	return &Location{
		DriverID:  driverID,
		Latitude:  lat,
		Longitude: lng,
		UpdatedAt: time.Unix(ts, 0).UTC(),
	}, nil
}
