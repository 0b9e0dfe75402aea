// Package ratelimit bounds the request rate of any single actor against any
// single route using a token-bucket registry. Buckets live in process memory
// only; limits reset on restart, which is acceptable.
package ratelimit

import (
	"math"
	"os"
	"strconv"
	"sync"
	"time"
)

// DefaultPerMinute is the shared capacity and refill rate when
// RATE_LIMIT_PER_MINUTE is unset or invalid.
const DefaultPerMinute = 30

// Decision is the outcome of an admission check. Rejection is a normal,
// reportable outcome, never an error.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
}

type bucket struct {
	tokens       float64
	lastRefillAt time.Time
}

// Registry is a concurrently-accessed map of per (actorID, route) token
// buckets. It is explicitly owned and injected rather than a hidden global.
type Registry struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	perMinute float64
	now       func() time.Time
}

// NewRegistry creates a registry with the given requests-per-minute capacity.
// A non-positive value falls back to DefaultPerMinute.
func NewRegistry(perMinute int) *Registry {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	return &Registry{
		buckets:   make(map[string]*bucket),
		perMinute: float64(perMinute),
		now:       time.Now,
	}
}

// NewRegistryFromEnv reads RATE_LIMIT_PER_MINUTE.
func NewRegistryFromEnv() *Registry {
	perMinute := DefaultPerMinute
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			perMinute = n
		}
	}
	return NewRegistry(perMinute)
}

// Admit checks and consumes one token for (actorID, route). The whole
// decision is computed under the registry lock so concurrent checks for the
// same key cannot lose updates to the token count.
func (r *Registry) Admit(actorID, route string) Decision {
	key := actorID + ":" + route
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		// First request for this key consumes one token immediately.
		r.buckets[key] = &bucket{tokens: r.perMinute - 1, lastRefillAt: now}
		return Decision{Allowed: true}
	}

	// Tokens accumulate continuously at perMinute/60 per second. Computed in
	// seconds so that waiting exactly one full token interval yields exactly
	// one token.
	refill := now.Sub(b.lastRefillAt).Seconds() * r.perMinute / 60
	b.tokens = math.Min(r.perMinute, b.tokens+refill)
	b.lastRefillAt = now

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true}
	}

	secondsUntilOneToken := (1 - b.tokens) * 60 / r.perMinute
	retryAfter := int(math.Ceil(secondsUntilOneToken))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Decision{Allowed: false, RetryAfterSeconds: retryAfter}
}
