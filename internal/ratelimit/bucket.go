// Package ratelimit provides the token buckets that cap how fast a signaling
// client may push messages through its connection.
package ratelimit

import (
	"sync"
	"time"
)

const nanosPerToken int64 = int64(time.Second) // 1e9

const maxInt64 = int64(^uint64(0) >> 1)

// Bucket is a token bucket that refills at a whole number of tokens per
// second using a provided Clock.
//
// Accounting is fixed-point in "nano-tokens" (one token is 1e9 nano-tokens),
// so a rate of X tokens/sec adds exactly X nano-tokens per elapsed
// nanosecond and no float rounding can leak tokens.
type Bucket struct {
	mu    sync.Mutex
	clock Clock

	capacity int64 // tokens
	rate     int64 // tokens/sec

	nanoTokens int64
	last       time.Time
}

// NewBucket returns a full bucket holding capacity tokens that refills at
// rate tokens per second. A nil clock falls back to RealClock.
func NewBucket(clock Clock, capacity, rate int64) *Bucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacity < 0 {
		capacity = 0
	}
	if rate < 0 {
		rate = 0
	}
	return &Bucket{
		clock:      clock,
		capacity:   capacity,
		rate:       rate,
		nanoTokens: toNano(capacity),
		last:       clock.Now(),
	}
}

// Allow spends one token if one is available.
func (b *Bucket) Allow() bool { return b.AllowN(1) }

// AllowN spends n tokens if available. n <= 0 always succeeds.
func (b *Bucket) AllowN(n int64) bool {
	if n <= 0 {
		return true
	}

	cost := toNano(n)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.nanoTokens < cost {
		return false
	}
	b.nanoTokens -= cost
	return true
}

func (b *Bucket) refillLocked() {
	now := b.clock.Now()
	if now.Before(b.last) {
		// Time went backwards. Skip the refill and move the reference point.
		b.last = now
		return
	}

	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	b.last = now

	if b.rate <= 0 || b.capacity <= 0 {
		return
	}

	full := toNano(b.capacity)
	if b.nanoTokens >= full {
		b.nanoTokens = full
		return
	}

	// rate is tokens/sec, which equals nano-tokens per nanosecond in the
	// fixed-point representation.
	need := full - b.nanoTokens
	elapsedNanos := elapsed.Nanoseconds()

	// Guard elapsedNanos*rate against overflow: once enough time has passed
	// to fill the bucket, clamp to capacity.
	fillAfter := need / b.rate
	if fillAfter <= 0 || elapsedNanos >= fillAfter {
		b.nanoTokens = full
		return
	}

	b.nanoTokens += elapsedNanos * b.rate
	if b.nanoTokens > full {
		b.nanoTokens = full
	}
}

func toNano(tokens int64) int64 {
	if tokens <= 0 {
		return 0
	}
	if tokens > maxInt64/nanosPerToken {
		return maxInt64
	}
	return tokens * nanosPerToken
}
