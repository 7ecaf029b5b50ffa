package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/darkpool-labs/relaygate/internal/model"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// SponsorshipCache maps a quote's content-derived key to the sponsorship
// terms computed at quote time. A miss is never fatal to a request; the
// caller falls back to treating the request as unsponsored.
type SponsorshipCache interface {
	Put(ctx context.Context, key string, info *model.GasSponsorshipInfo) error
	// Get returns (nil, nil) on a miss
	Get(ctx context.Context, key string) (*model.GasSponsorshipInfo, error)
}

const sponsorshipKeyPrefix = "sponsorship:"

// RedisSponsorshipCache stores sponsorship info in Redis with a TTL so
// that any gateway replica can complete an assembly request.
type RedisSponsorshipCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSponsorshipCache(client *RedisClient, ttl time.Duration) *RedisSponsorshipCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisSponsorshipCache{client: client.Client, ttl: ttl}
}

func (c *RedisSponsorshipCache) Put(ctx context.Context, key string, info *model.GasSponsorshipInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sponsorshipKeyPrefix+key, payload, c.ttl).Err()
}

func (c *RedisSponsorshipCache) Get(ctx context.Context, key string) (*model.GasSponsorshipInfo, error) {
	payload, err := c.client.Get(ctx, sponsorshipKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info model.GasSponsorshipInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// MemorySponsorshipCache is the single-process fallback used when Redis
// is not configured, and the substitute store in tests.
type MemorySponsorshipCache struct {
	cache *lru.LRU[string, model.GasSponsorshipInfo]
}

func NewMemorySponsorshipCache(size int, ttl time.Duration) *MemorySponsorshipCache {
	if size <= 0 {
		size = 4096
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MemorySponsorshipCache{
		cache: lru.NewLRU[string, model.GasSponsorshipInfo](size, nil, ttl),
	}
}

func (c *MemorySponsorshipCache) Put(_ context.Context, key string, info *model.GasSponsorshipInfo) error {
	c.cache.Add(key, *info)
	return nil
}

func (c *MemorySponsorshipCache) Get(_ context.Context, key string) (*model.GasSponsorshipInfo, error) {
	info, ok := c.cache.Get(key)
	if !ok {
		return nil, nil
	}
	return &info, nil
}
