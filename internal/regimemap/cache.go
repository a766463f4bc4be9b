package regimemap

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EstimateCache memoizes EstimateRegimeGeometry results in Redis, keyed by
// a rounded RegimeVector, so repeated off-lattice queries near the same
// target skip the k-NN blend. A nil *EstimateCache degrades every call to
// a no-op, matching the teacher's nil-safe cache-manager pattern.
type EstimateCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewEstimateCache connects to addr/db with the given TTL for cached
// estimates.
func NewEstimateCache(addr, password string, db int, ttl time.Duration) *EstimateCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &EstimateCache{client: client, ttl: ttl, prefix: "amm-discovery:regimemap:"}
}

func (c *EstimateCache) key(v RegimeVector) string {
	return fmt.Sprintf("%s%.4f:%.4f:%.4f:%.4f:%.4f:%.4f", c.prefix,
		v.Volatility, v.JumpIntensity, v.JumpMean, v.JumpStd, v.MeanReversion, v.ArbResponsiveness)
}

// Get returns a cached estimate for v, if present and still fresh.
func (c *EstimateCache) Get(ctx context.Context, v RegimeVector) (Estimate, bool) {
	if c == nil || c.client == nil {
		return Estimate{}, false
	}
	raw, err := c.client.Get(ctx, c.key(v)).Result()
	if err != nil {
		return Estimate{}, false
	}
	var est Estimate
	if err := json.Unmarshal([]byte(raw), &est); err != nil {
		return Estimate{}, false
	}
	return est, true
}

// Set stores est for v with the cache's configured TTL.
func (c *EstimateCache) Set(ctx context.Context, v RegimeVector, est Estimate) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(est)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(v), data, c.ttl)
}

// Close releases the underlying Redis connection pool.
func (c *EstimateCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
