// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger for the intake API.
// Complaint conversations carry names, phone numbers, and street addresses,
// so the logger is default-safe: bodies are never logged, caller identity
// headers are fully masked, and request metadata is scrubbed of PII shapes
// before it reaches the log stream.
//
// The matched route pattern (e.g. /sessions/:id/messages) is logged instead
// of the raw URL path, so session identifiers never appear in access logs.
//
// RedactingLogger also attaches a request-scoped zerolog.Logger to the Gin
// context; handlers retrieve it via LoggerFrom to tag their own log lines
// with the request id.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// maxQueryLogBytes caps how much of the raw query string is logged.
const maxQueryLogBytes = 2048

// Scrub patterns. The long-digit-run pattern mirrors the shape the intake
// extractor treats as a mobile number; the formatted-phone pattern catches
// punctuated variants and requires at least one separator so the 8-digit
// date run inside complaint ids (COMP-YYYYMMDD-xxxx) stays readable.
// UUIDs go first so the phone patterns never bite into their hex segments.
var (
	scrubUUIDRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	scrubEmailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	scrubDigitRE = regexp.MustCompile(`\d{10,}`)
	scrubPhoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-])?\(?\d{2,4}\)?[ .-]\d{3,4}[ .-]?\d{4}\b`)
)

// scrub replaces PII shapes in s with tagged placeholders.
func scrub(s string) string {
	if s == "" {
		return s
	}
	s = scrubUUIDRE.ReplaceAllString(s, "[REDACTED:id]")
	s = scrubEmailRE.ReplaceAllString(s, "[REDACTED:email]")
	s = scrubDigitRE.ReplaceAllString(s, "[REDACTED:phone]")
	s = scrubPhoneRE.ReplaceAllString(s, "[REDACTED:phone]")
	return s
}

// maskedByDefault lists headers whose values are always replaced wholesale.
// X-User-ID identifies the complainant and never belongs in logs.
var maskedByDefault = []string{"authorization", "cookie", "set-cookie", "x-user-id"}

// RedactOptions configures extra scrub behavior. MaskHeaders names additional
// headers (case-insensitive) whose values are fully replaced with
// "[REDACTED]", on top of the built-in set.
type RedactOptions struct {
	MaskHeaders []string
}

// RedactingLogger returns the access-log middleware. Per request it logs
// method, route, scrubbed query, scrubbed headers, status, latency, and
// response size, at info/warn/error depending on status, and stashes a
// request-scoped logger for LoggerFrom.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := make(map[string]struct{}, len(maskedByDefault)+len(opts.MaskHeaders))
	for _, h := range maskedByDefault {
		masked[h] = struct{}{}
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			// Unmatched routes fall back to the raw path, scrubbed.
			route = scrub(c.Request.URL.Path)
		}

		safeQuery := scrub(clip(c.Request.URL.RawQuery, maxQueryLogBytes))

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = scrub(strings.Join(vv, ", "))
		}

		rid := requestIDOf(c)
		reqLogger := log.With().
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("path", route).
			Logger()
		c.Set(ctxKeyLogger, &reqLogger)

		c.Next()

		status := c.Writer.Status()
		ev := reqLogger.Info()
		switch {
		case status >= 500:
			ev = reqLogger.Error()
		case status >= 400:
			ev = reqLogger.Warn()
		}
		ev.
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}

// requestIDOf prefers the response header set by RequestID and falls back to
// the inbound header when the middleware runs earlier in the chain.
func requestIDOf(c *gin.Context) string {
	if rid := c.Writer.Header().Get(requestIDHeader); rid != "" {
		return rid
	}
	return c.GetHeader(requestIDHeader)
}

// clip truncates s to max bytes, appending an ellipsis. max <= 0 disables.
func clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
