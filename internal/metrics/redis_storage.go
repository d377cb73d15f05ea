package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DataPoint is a single timestamped metric observation.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// RedisStorage persists metric history in Redis sorted sets, scored by
// observation time, so dashboards can chart trends across restarts.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStorage connects to the Redis instance named by url and verifies
// the connection with a ping.
func NewRedisStorage(url string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		prefix: "seval:metrics:",
		ttl:    24 * time.Hour,
	}, nil
}

// SetTTL overrides the retention window for subsequently saved points.
func (s *RedisStorage) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}

// SaveDataPoint appends one observation to the named metric's history and
// trims points older than the retention window.
func (s *RedisStorage) SaveDataPoint(ctx context.Context, metricName string, point DataPoint) error {
	data, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("marshaling data point: %w", err)
	}

	key := s.prefix + metricName
	cutoff := time.Now().Add(-s.ttl)

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(point.Timestamp.UnixMilli()),
		Member: string(data),
	})
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff.UnixMilli()))
	pipe.Expire(ctx, key, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving data point: %w", err)
	}
	return nil
}

// SaveBatch appends multiple observations to the named metric's history in a
// single round trip.
func (s *RedisStorage) SaveBatch(ctx context.Context, metricName string, points []DataPoint) error {
	if len(points) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(points))
	for _, point := range points {
		data, err := json.Marshal(point)
		if err != nil {
			return fmt.Errorf("marshaling data point: %w", err)
		}
		members = append(members, redis.Z{
			Score:  float64(point.Timestamp.UnixMilli()),
			Member: string(data),
		})
	}

	key := s.prefix + metricName
	cutoff := time.Now().Add(-s.ttl)

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, members...)
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff.UnixMilli()))
	pipe.Expire(ctx, key, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving batch: %w", err)
	}
	return nil
}

// LoadHistory returns observations for the named metric in [from, to],
// oldest first.
func (s *RedisStorage) LoadHistory(ctx context.Context, metricName string, from, to time.Time) ([]DataPoint, error) {
	key := s.prefix + metricName

	entries, err := s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from.UnixMilli()),
		Max: fmt.Sprintf("%d", to.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	points := make([]DataPoint, 0, len(entries))
	for _, entry := range entries {
		raw, ok := entry.Member.(string)
		if !ok {
			continue
		}
		var point DataPoint
		if err := json.Unmarshal([]byte(raw), &point); err != nil {
			continue
		}
		points = append(points, point)
	}
	return points, nil
}

// GetMetricNames lists all metrics that have stored history.
func (s *RedisStorage) GetMetricNames(ctx context.Context) ([]string, error) {
	keys, err := s.client.Keys(ctx, s.prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("listing metric keys: %w", err)
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, strings.TrimPrefix(key, s.prefix))
	}
	return names, nil
}

// DeleteMetric removes all stored history for the named metric.
func (s *RedisStorage) DeleteMetric(ctx context.Context, metricName string) error {
	if err := s.client.Del(ctx, s.prefix+metricName).Err(); err != nil {
		return fmt.Errorf("deleting metric history: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
