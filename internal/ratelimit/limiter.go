// Package ratelimit provides the shared token bucket gating all outbound
// requests to the market data source. One limiter is shared across every
// concurrent series fetch so the process-wide request rate stays inside
// the source's budget regardless of fan-out.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a blocking token bucket. Wait consumes one token, sleeping
// until one is available or the context is done.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
	pausedTo   time.Time

	now func() time.Time
}

// New creates a limiter with the given burst capacity and refill rate.
// The bucket starts full.
func New(capacity, refillPerSec float64) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	if refillPerSec <= 0 {
		refillPerSec = 1
	}
	l := &Limiter{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillPerSec,
		now:        time.Now,
	}
	l.last = l.now()
	return l
}

// Allow consumes a token without blocking. It returns false when the
// bucket is empty or a cooldown is active.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.take(l.now())
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		if l.take(now) {
			l.mu.Unlock()
			return nil
		}
		sleep := l.nextAvailable(now).Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Cooldown pauses the bucket for d, typically from a Retry-After hint.
// An already longer pause is kept.
func (l *Limiter) Cooldown(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	until := l.now().Add(d)
	if until.After(l.pausedTo) {
		l.pausedTo = until
	}
}

// take refills the bucket and consumes one token if possible. The caller
// holds the mutex.
func (l *Limiter) take(now time.Time) bool {
	if now.Before(l.pausedTo) {
		return false
	}
	elapsed := now.Sub(l.last).Seconds()
	if elapsed > 0 {
		l.tokens += elapsed * l.refillRate
		if l.tokens > l.capacity {
			l.tokens = l.capacity
		}
		l.last = now
	}
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// nextAvailable estimates when the next token can be taken. The caller
// holds the mutex.
func (l *Limiter) nextAvailable(now time.Time) time.Time {
	at := now
	if l.tokens < 1 {
		deficit := 1 - l.tokens
		at = at.Add(time.Duration(deficit / l.refillRate * float64(time.Second)))
	}
	if l.pausedTo.After(at) {
		at = l.pausedTo
	}
	return at
}
