package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLeakyBucketFirstCallAllowed(t *testing.T) {
	l := NewLeakyBucket()
	allowed, _, _ := l.Allow("k", 10, time.Second)
	assert.True(t, allowed)
}

func TestLeakyBucketPacesBursts(t *testing.T) {
	l := NewLeakyBucket()

	// At 4 rps a burst of calls cannot all pass immediately.
	denied := 0
	for i := 0; i < 3; i++ {
		if allowed, _, _ := l.Allow("k", 4, time.Second); !allowed {
			denied++
		}
	}
	assert.Greater(t, denied, 0, "a burst above the steady rate is paced")
}

func TestLeakyBucketKeysIndependent(t *testing.T) {
	l := NewLeakyBucket()
	l.Allow("a", 1, time.Second)
	l.Allow("a", 1, time.Second)

	allowed, _, _ := l.Allow("b", 1, time.Second)
	assert.True(t, allowed, "a different key has its own bucket")
}

func TestLeakyBucketReusesLimiter(t *testing.T) {
	l := NewLeakyBucket()
	l.Allow("k", 10, time.Second)
	l.Allow("k", 10, time.Second)

	_, ok := l.limiters.Load("k-10")
	assert.True(t, ok)
}
