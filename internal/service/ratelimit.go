package service

import (
	"context"
	"fmt"

	"github.com/darkpool-labs/relaygate/internal/config"
	"github.com/darkpool-labs/relaygate/internal/pkg/logger"
	"github.com/darkpool-labs/relaygate/internal/pkg/metrics"
	"github.com/darkpool-labs/relaygate/internal/repository"
)

// LimitKind names one of the three independent per-caller limits.
type LimitKind string

const (
	LimitQuote       LimitKind = "quote"
	LimitBundle      LimitKind = "bundle"
	LimitSponsorship LimitKind = "sponsorship"
)

// RateLimiter enforces per-caller token buckets. Quote and bundle
// buckets gate admission; the sponsorship bucket only gates whether the
// sponsorship value-add is applied. Bundle tokens consumed at admission
// are returned when the bundle is confirmed settled.
type RateLimiter struct {
	store    repository.BucketStore
	policies map[LimitKind]repository.BucketPolicy
}

func NewRateLimiter(store repository.BucketStore, cfg *config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		store: store,
		policies: map[LimitKind]repository.BucketPolicy{
			LimitQuote: {
				Capacity:       cfg.Quote.Capacity,
				RefillInterval: cfg.Quote.RefillInterval(),
			},
			LimitBundle: {
				Capacity:       cfg.Bundle.Capacity,
				RefillInterval: cfg.Bundle.RefillInterval(),
			},
			LimitSponsorship: {
				Capacity:       cfg.Sponsorship.Capacity,
				RefillInterval: cfg.Sponsorship.RefillInterval(),
			},
		},
	}
}

func (r *RateLimiter) key(caller string, kind LimitKind) string {
	return fmt.Sprintf("bucket:%s:%s", kind, caller)
}

// Check reports whether a token is available without consuming one. A
// store failure reads as limited so degradable features (sponsorship)
// are skipped rather than over-granted.
func (r *RateLimiter) Check(ctx context.Context, caller string, kind LimitKind) bool {
	ok, err := r.store.Check(ctx, r.key(caller, kind), r.policies[kind])
	if err != nil {
		logger.Warn("rate limit check failed", "caller", caller, "kind", kind, "error", err)
		return false
	}
	return ok
}

// Admit consumes one token, rejecting when the bucket is empty. A store
// failure admits the request: the gateway prefers availability over
// strict accounting when the shared store is unreachable.
func (r *RateLimiter) Admit(ctx context.Context, caller string, kind LimitKind) bool {
	ok, err := r.store.Admit(ctx, r.key(caller, kind), r.policies[kind])
	if err != nil {
		logger.Warn("rate limit admit failed, allowing request", "caller", caller, "kind", kind, "error", err)
		return true
	}
	if !ok {
		metrics.RateLimitRejectsTotal.WithLabelValues(caller, string(kind)).Inc()
	}
	return ok
}

// Credit returns one token, capped at the bucket's capacity.
func (r *RateLimiter) Credit(ctx context.Context, caller string, kind LimitKind) {
	if err := r.store.Credit(ctx, r.key(caller, kind), r.policies[kind]); err != nil {
		logger.Warn("rate limit credit failed", "caller", caller, "kind", kind, "error", err)
	}
}
