package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/metevents/internal/domain"
)

const redisOpTimeout = 2 * time.Second

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisStore keeps series in Redis as JSON with a TTL. Redis failures are
// logged and treated as misses so fetching falls through to the station API.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("connected to redis cache", "addr", cfg.Addr, "db", cfg.DB)
	return &RedisStore{client: client, ttl: cfg.TTL, logger: logger}, nil
}

func (c *RedisStore) Get(ctx context.Context, key string) (domain.Series, bool) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Series{}, false
	}
	if err != nil {
		c.logger.Warn("redis get failed", "key", key, "error", err)
		return domain.Series{}, false
	}

	var w wireSeries
	if err := json.Unmarshal(val, &w); err != nil {
		c.logger.Warn("cached series unreadable", "key", key, "error", err)
		return domain.Series{}, false
	}
	return w.series(), true
}

func (c *RedisStore) Put(ctx context.Context, key string, s domain.Series) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	data, err := json.Marshal(newWireSeries(s))
	if err != nil {
		c.logger.Warn("encode series failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", "key", key, "error", err)
	}
}

// CheckReadiness pings Redis.
func (c *RedisStore) CheckReadiness(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStore) Close() error {
	return c.client.Close()
}

// wireSeries is the JSON form of a Series. JSON has no NaN, so missing
// samples travel as null.
type wireSeries struct {
	Name   string      `json:"name,omitempty"`
	Times  []time.Time `json:"times"`
	Values []*float64  `json:"values"`
}

func newWireSeries(s domain.Series) wireSeries {
	values := make([]*float64, len(s.Values))
	for i, v := range s.Values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			values[i] = &v
		}
	}
	return wireSeries{Name: s.Name, Times: s.Times, Values: values}
}

func (w wireSeries) series() domain.Series {
	values := make([]float64, len(w.Values))
	for i, v := range w.Values {
		if v == nil {
			values[i] = math.NaN()
			continue
		}
		values[i] = *v
	}
	return domain.Series{Name: w.Name, Times: w.Times, Values: values}
}
