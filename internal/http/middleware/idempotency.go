// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key handling for the message-turn endpoint.
// A conversation turn is expensive (LLM calls, possible escalation mail), so a
// client retry with the same key must not run the turn twice. The middleware
// validates the header, stashes the key, and flags detected replays so the
// rate limiter waves them through and the handler can serve the stored reply.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-chosen retry key. Clients reuse the
// same value when retrying a turn so the backend can deduplicate it.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys stashed by IdempotencyValidator, read via the accessors below
// and by the rate limiter.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// defaultKeyPattern accepts URL-safe token characters, which covers UUIDs and
// the usual client-generated key shapes.
var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stashed for this request.
// Handlers read it from here rather than re-parsing the header.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether a stored reply already exists for this turn's
// (user, session, key) tuple. Replays do not advance the conversation.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions tunes header validation. MaxLen values <= 0 default to
// 200; a nil Pattern falls back to defaultKeyPattern. TTL expiry is the
// lookup's concern, not the validator's.
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a non-expired stored reply exists for the
// tuple at the given time. Lookup errors must not block the turn; the caller
// treats them as a miss.
type IdempotencyLookup func(ctx context.Context, userID, sessionID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates any Idempotency-Key header, stashes the key,
// and consults lookup for a prior completed turn. Requests without the header
// pass through untouched; malformed keys get a 400 before any work happens.
// On a detected replay it sets the replay and rate-bypass flags; serving the
// stored reply remains the handler's job.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			// The session id rides on the :id path param of the turn route.
			sessionID := c.Param("id")
			exists, _ := lookup(c.Request.Context(), userIDFromCtx(c), sessionID, key, time.Now().UTC())
			if exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// userIDFromCtx reads the identity set by upstream auth middleware, falling
// back to "demo-user" when the deployment runs without auth.
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "demo-user"
}
