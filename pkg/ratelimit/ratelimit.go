package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter gates requests per caller.
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	GetRemaining() int
}

// TokenBucket refills at a fixed rate per second up to capacity.
type TokenBucket struct {
	capacity   int
	tokens     int
	refillRate int // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	tokensToAdd := int(elapsed.Seconds()) * tb.refillRate
	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = now
	}
}

// Allow consumes one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or the context ends.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		waitTime := time.Second
		if tb.refillRate > 0 {
			waitTime = time.Second / time.Duration(tb.refillRate)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

func (tb *TokenBucket) GetRemaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

// PerUser hands out one bucket per user id so heavy callers cannot
// starve everyone else.
type PerUser struct {
	capacity   int
	refillRate int
	buckets    map[string]*TokenBucket
	mu         sync.Mutex
}

func NewPerUser(capacity, refillRate int) *PerUser {
	return &PerUser{
		capacity:   capacity,
		refillRate: refillRate,
		buckets:    make(map[string]*TokenBucket),
	}
}

func (p *PerUser) bucket(userID string) *TokenBucket {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.buckets[userID]
	if !ok {
		b = NewTokenBucket(p.capacity, p.refillRate)
		p.buckets[userID] = b
	}
	return b
}

func (p *PerUser) Allow(userID string) bool {
	return p.bucket(userID).Allow()
}
