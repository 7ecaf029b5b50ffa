package repository

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// BucketPolicy parameterizes a token bucket. Buckets start full and
// refill one token per RefillInterval; a zero interval disables refill.
type BucketPolicy struct {
	Capacity       int64
	RefillInterval time.Duration
}

// BucketStore is the shared accounting state behind the rate limiter.
// All three operations are atomic per key: two concurrent Admits on a
// bucket holding one token yield exactly one admission.
type BucketStore interface {
	// Check reports whether a token is available without consuming one
	Check(ctx context.Context, key string, p BucketPolicy) (bool, error)
	// Admit consumes one token, failing closed when the bucket is empty
	Admit(ctx context.Context, key string, p BucketPolicy) (bool, error)
	// Credit returns one token, capped at the bucket's capacity
	Credit(ctx context.Context, key string, p BucketPolicy) error
}

// --- In-memory store --- //

type memBucket struct {
	mu     sync.Mutex
	tokens int64
	last   time.Time
}

// MemoryBucketStore keeps buckets in process memory. It is the fallback
// when Redis is not configured and the substitute store in tests.
type MemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*memBucket
	clock   clock.Clock
}

func NewMemoryBucketStore(clk clock.Clock) *MemoryBucketStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryBucketStore{
		buckets: make(map[string]*memBucket),
		clock:   clk,
	}
}

func (s *MemoryBucketStore) bucket(key string, p BucketPolicy) *memBucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	if !ok {
		b = &memBucket{tokens: p.Capacity, last: s.clock.Now()}
		s.buckets[key] = b
	}
	return b
}

// refill lazily adds the tokens accrued since the last access. Caller
// holds b.mu.
func (s *MemoryBucketStore) refill(b *memBucket, p BucketPolicy) {
	if p.RefillInterval <= 0 {
		return
	}
	now := s.clock.Now()
	n := int64(now.Sub(b.last) / p.RefillInterval)
	if n <= 0 {
		return
	}
	b.tokens += n
	if b.tokens >= p.Capacity {
		b.tokens = p.Capacity
		b.last = now
	} else {
		b.last = b.last.Add(time.Duration(n) * p.RefillInterval)
	}
}

func (s *MemoryBucketStore) Check(_ context.Context, key string, p BucketPolicy) (bool, error) {
	b := s.bucket(key, p)
	b.mu.Lock()
	defer b.mu.Unlock()
	s.refill(b, p)
	return b.tokens > 0, nil
}

func (s *MemoryBucketStore) Admit(_ context.Context, key string, p BucketPolicy) (bool, error) {
	b := s.bucket(key, p)
	b.mu.Lock()
	defer b.mu.Unlock()
	s.refill(b, p)
	if b.tokens <= 0 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

func (s *MemoryBucketStore) Credit(_ context.Context, key string, p BucketPolicy) error {
	b := s.bucket(key, p)
	b.mu.Lock()
	defer b.mu.Unlock()
	s.refill(b, p)
	if b.tokens < p.Capacity {
		b.tokens++
	}
	return nil
}
