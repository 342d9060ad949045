// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the token-bucket limiter that protects the message
// turn endpoint. A single turn can fan out into several model calls plus
// store writes, so the limiter keys buckets by the caller rather than
// globally: an abusive session cannot starve other users, and an abusive
// user cannot hide behind many sessions.
//
// The limiter is process-local and meant for edge-level cost protection in
// a single-instance deployment. It is not an authorization mechanism.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// bucketKeyFunc maps a request to the identity that owns its token bucket.
// The key must be stable for the duration of the request.
type bucketKeyFunc func(*gin.Context) string

// TurnKey keys buckets by, in order of preference: the authenticated user
// ("userID" in the Gin context, or the X-User-ID header), the session id path
// parameter, and finally the client IP. Prefixes keep the three namespaces
// from colliding.
func TurnKey() bucketKeyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		if h := c.GetHeader("X-User-ID"); h != "" {
			return "user:" + h
		}
		if sid := c.Param("id"); sid != "" {
			return "session:" + sid
		}
		return "ip:" + c.ClientIP()
	}
}

// bucket is one caller's limiter plus the last time it was used, so idle
// entries can be evicted.
type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces per-caller token-bucket limits. Buckets are created
// on first use and swept when they have been idle longer than the eviction
// TTL. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn bucketKeyFunc

	mu        sync.Mutex
	buckets   map[string]*bucket
	ttl       time.Duration
	lastSweep time.Time
}

// NewRateLimiter builds a limiter replenishing rps tokens per second with the
// given burst size (values <= 0 are coerced to 1), keyed by keyFn. Install it
// with Handler().
func NewRateLimiter(rps float64, burst int, keyFn bucketKeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		keyFn:     keyFn,
		buckets:   make(map[string]*bucket),
		ttl:       10 * time.Minute,
		lastSweep: time.Now(),
	}
}

// take returns the limiter for key, creating it when absent. Idle buckets are
// swept first, at most once per half TTL, so a stale bucket for the requested
// key is evicted rather than refreshed.
func (rl *RateLimiter) take(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.ttl/2 {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.lim
	}
	b := &bucket{lim: rate.NewLimiter(rl.rps, rl.burst), lastSeen: now}
	rl.buckets[key] = b
	return b.lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay of an already-completed turn. Replays are served from the stored
// reply and must not consume tokens, or a retry storm after an outage would
// lock callers out of their own results.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the Gin middleware. Replays pass through unmetered; all
// other requests draw one token from their caller's bucket or receive a 429
// with a Retry-After hint and the usual error envelope fields.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		if rl.take(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
