package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/darkpool-labs/relaygate/internal/pkg/apperrors"
)

// ThrottleMiddleware applies a coarse per-caller QPS limit in front of
// the endpoint token buckets. It sheds bursts cheaply in memory so that
// abusive callers never reach the shared bucket store.
func ThrottleMiddleware(qps float64, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			l = rate.NewLimiter(rate.Limit(qps), burst)
			limiters[key] = l
		}
		return l
	}

	return func(c *gin.Context) {
		caller, ok := GetCaller(c)
		if !ok {
			c.Next()
			return
		}

		if !limiterFor(caller.KeyID).Allow() {
			c.Error(apperrors.NewRateLimited("request rate too high"))
			c.Abort()
			return
		}
		c.Next()
	}
}
