package ratelimit

import (
	"fmt"
	"sync"
	"time"

	uberratelimit "go.uber.org/ratelimit"

	"github.com/ereojs/ereo/pkg/common"
)

// LeakyBucket is an alternative common.RateLimiter built on Uber's
// leaky-bucket library. Unlike Store it smooths traffic to a steady rate
// instead of counting per window; limiters are keyed by bucket key and
// derived requests-per-second.
type LeakyBucket struct {
	limiters sync.Map // composite key -> uberratelimit.Limiter
	mu       sync.Mutex
}

// NewLeakyBucket creates an empty leaky-bucket limiter set.
func NewLeakyBucket() *LeakyBucket {
	return &LeakyBucket{}
}

var _ common.RateLimiter = (*LeakyBucket)(nil)

func (l *LeakyBucket) limiter(key string, rps int) uberratelimit.Limiter {
	compositeKey := fmt.Sprintf("%s-%d", key, rps)
	if lim, ok := l.limiters.Load(compositeKey); ok {
		return lim.(uberratelimit.Limiter)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters.Load(compositeKey); ok {
		return lim.(uberratelimit.Limiter)
	}
	lim := uberratelimit.New(rps)
	l.limiters.Store(compositeKey, lim)
	return lim
}

// Allow converts the limit/window pair to a steady requests-per-second
// rate and takes one slot from the keyed bucket. A wait beyond one
// millisecond counts as a denial; remaining is an approximation since a
// leaky bucket tracks pacing, not counts.
func (l *LeakyBucket) Allow(key string, limit int, window time.Duration) (bool, int, time.Duration) {
	rps := int(float64(limit) / window.Seconds())
	if rps < 1 {
		rps = 1
	}

	now := time.Now()
	wait := l.limiter(key, rps).Take().Sub(now)

	remaining := int(float64(limit) * (1 - wait.Seconds()/window.Seconds()))
	if remaining < 0 {
		remaining = 0
	}
	reset := wait
	if reset < 0 {
		reset = 0
	}
	return wait <= time.Millisecond, remaining, reset
}
