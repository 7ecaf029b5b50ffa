package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// bucketScript refills, then applies one of check/admit/credit in a
// single Redis round trip so bucket mutations stay atomic across
// gateway replicas. Returns 1 on success, 0 when rate limited.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_ms = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local op = ARGV[4]

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end

if refill_ms > 0 then
  local accrued = math.floor((now - ts) / refill_ms)
  if accrued > 0 then
    tokens = tokens + accrued
    if tokens >= capacity then
      tokens = capacity
      ts = now
    else
      ts = ts + accrued * refill_ms
    end
  end
end

local ok = 0
if op == 'admit' then
  if tokens > 0 then
    tokens = tokens - 1
    ok = 1
  end
elseif op == 'credit' then
  if tokens < capacity then
    tokens = tokens + 1
  end
  ok = 1
else
  if tokens > 0 then
    ok = 1
  end
end

redis.call('HSET', key, 'tokens', tokens, 'ts', ts)
redis.call('PEXPIRE', key, math.max(refill_ms * capacity, 3600000))
return ok
`)

// RedisBucketStore shares token buckets across gateway replicas.
type RedisBucketStore struct {
	client *redis.Client
}

func NewRedisBucketStore(client *RedisClient) *RedisBucketStore {
	return &RedisBucketStore{client: client.Client}
}

func (s *RedisBucketStore) run(ctx context.Context, key string, p BucketPolicy, op string) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := bucketScript.Run(ctx, s.client, []string{key},
		p.Capacity, p.RefillInterval.Milliseconds(), now, op).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisBucketStore) Check(ctx context.Context, key string, p BucketPolicy) (bool, error) {
	return s.run(ctx, key, p, "check")
}

func (s *RedisBucketStore) Admit(ctx context.Context, key string, p BucketPolicy) (bool, error) {
	return s.run(ctx, key, p, "admit")
}

func (s *RedisBucketStore) Credit(ctx context.Context, key string, p BucketPolicy) error {
	_, err := s.run(ctx, key, p, "credit")
	return err
}
