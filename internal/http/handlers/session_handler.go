// Session HTTP handlers.
//
// This file exposes REST endpoints for conversation sessions:
//   - POST   /sessions/{id}/messages  (send a message, get the bot reply)
//   - GET    /sessions/{id}/messages  (full session transcript)
//   - DELETE /sessions/{id}           (clear session state)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (including newline and length constraints)
//   - delegate to application services (SessionService)
//   - implement idempotency semantics for the message turn
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// reply exists for (user, session, key), the handler returns that recorded
// reply and sets `Idempotency-Replayed: true`. Replays do not advance the
// conversation.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-complaint-backend/internal/convo"
	"github.com/tbourn/go-complaint-backend/internal/domain"
	"github.com/tbourn/go-complaint-backend/internal/llm"
	"github.com/tbourn/go-complaint-backend/internal/repo"
	"github.com/tbourn/go-complaint-backend/internal/services"
	"github.com/tbourn/go-complaint-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SessionService defines conversation operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SessionService interface {
	// Converse runs one conversation turn for the session.
	Converse(ctx context.Context, sessionID, message string) (*services.ConverseResult, error)
	// History returns the session's transcript, oldest first.
	History(ctx context.Context, sessionID string) ([]llm.Message, error)
	// Clear drops the session's state entirely.
	Clear(ctx context.Context, sessionID string)
}

// ComplaintService defines operator-facing complaint operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ComplaintService interface {
	// ListPage returns a page of complaints, newest first, and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Complaint, int64, error)
	// Get fetches a single complaint by id.
	Get(ctx context.Context, id string) (*domain.Complaint, error)
	// UpdateStatus sets a complaint's status and optional resolution note.
	UpdateStatus(ctx context.Context, id, status, resolution string) error
	// MessagesPage returns a page of the complaint's conversation log.
	MessagesPage(ctx context.Context, id string, page, pageSize int) ([]domain.ConversationEntry, int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for sessions and complaints. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	sessionSvc SessionService
	compSvc    ComplaintService

	// DB enables best-effort idempotency replay; nil disables it.
	DB *gorm.DB

	// IdempotencyTTL bounds how long a recorded reply stays replayable
	// (IDEMPOTENCY_TTL). Zero or negative falls back to defaultIdempotencyTTL.
	IdempotencyTTL time.Duration
}

// defaultIdempotencyTTL applies when Handlers.IdempotencyTTL is unset.
const defaultIdempotencyTTL = 24 * time.Hour

// New constructs and returns a Handlers instance bound to the given services.
func New(sessionSvc SessionService, compSvc ComplaintService, db *gorm.DB) *Handlers {
	return &Handlers{sessionSvc: sessionSvc, compSvc: compSvc, DB: db}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// ConverseRequest is the JSON payload for sending a user message.
//
// Message is normalized by the handler (line endings and excessive blank
// lines) before being passed to the service layer, which also enforces a
// maximum rune count.
type ConverseRequest struct {
	// Message is the user utterance. It must be non-empty.
	Message string `json:"message" binding:"required,min=1"`
}

// ConverseResponse is the JSON envelope for one conversation turn.
type ConverseResponse struct {
	// Reply is the bot's answer to this turn.
	Reply string `json:"reply"`
	// State is the conversation phase after the turn.
	State convo.State `json:"state"`
	// ComplaintID is the active complaint, when one has been registered.
	ComplaintID string `json:"complaint_id,omitempty"`
}

// HistoryResponse contains a session's transcript, oldest first.
type HistoryResponse struct {
	Messages []llm.Message `json:"messages"`
}

//
// Helpers
//

// sessionIDRE bounds session identifiers to a conservative shape: clients
// choose them, so keep the character set tight.
var sessionIDRE = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeMessage normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeMessage(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxPromptRunes inspects the concrete SessionService for a configured
// message-length limit. If unavailable, it returns a conservative fallback.
func discoverMaxPromptRunes(sessionSvc SessionService) int {
	const fallback = 4000
	if ss, ok := sessionSvc.(*services.SessionService); ok {
		if ss.MaxPromptRunes > 0 {
			return ss.MaxPromptRunes
		}
	}
	return fallback
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Handlers
//

// Converse appends a user message to the session and returns the bot reply.
// Supports idempotency via the Idempotency-Key header (same key, same reply).
func (h *Handlers) Converse(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if !sessionIDRE.MatchString(sessionID) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid session id")
		return
	}

	var req ConverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	message := sanitizeMessage(req.Message)
	maxRunes := discoverMaxPromptRunes(h.sessionSvc)
	if maxRunes > 0 && utf8.RuneCountInString(message) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("message too long: max %d runes", maxRunes))
		return
	}
	if message == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}

	currentUser := userID(c)

	// Idempotency (replay path): read validated key if present.
	idemKey, _ := idempotencyKeyFrom(c)
	if idemKey != "" && h.DB != nil {
		if rec, err := repo.GetIdempotency(ctx, h.DB, currentUser, sessionID, idemKey, time.Now().UTC()); err == nil && rec != nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, ConverseResponse{Reply: rec.Reply})
			return
		}
	}

	res, err := h.sessionSvc.Converse(ctx, sessionID, message)
	if err != nil {
		switch err {
		case services.ErrTooLong:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("message too long: max %d runes", maxRunes))
		case services.ErrEmptyMessage:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeConverseFailed, err.Error())
		}
		return
	}

	// Idempotency (store path): best effort.
	if idemKey != "" && h.DB != nil {
		ttl := h.IdempotencyTTL
		if ttl <= 0 {
			ttl = defaultIdempotencyTTL
		}
		_, _ = repo.CreateIdempotency(ctx, h.DB, currentUser, sessionID, idemKey, res.Reply, http.StatusOK, ttl)
	}

	ok(c, http.StatusOK, ConverseResponse{
		Reply:       res.Reply,
		State:       res.State,
		ComplaintID: res.ComplaintID,
	})
}

// SessionHistory returns the full transcript of a session, oldest first.
func (h *Handlers) SessionHistory(c *gin.Context) {
	sessionID := c.Param("id")
	if !sessionIDRE.MatchString(sessionID) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid session id")
		return
	}

	msgs, err := h.sessionSvc.History(c.Request.Context(), sessionID)
	if err != nil {
		switch err {
		case services.ErrSessionNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, HistoryResponse{Messages: msgs})
}

// ClearSession drops the session state. Persisted complaints survive.
func (h *Handlers) ClearSession(c *gin.Context) {
	sessionID := c.Param("id")
	if !sessionIDRE.MatchString(sessionID) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid session id")
		return
	}
	h.sessionSvc.Clear(c.Request.Context(), sessionID)
	noContent(c)
}

// idempotencyKeyFrom extracts an idempotency key if an upstream middleware has
// already validated/stashed it. The fallback behavior reads the
// "Idempotency-Key" header directly when no dedicated middleware exists.
func idempotencyKeyFrom(c *gin.Context) (string, bool) {
	if v := strings.TrimSpace(c.GetHeader("Idempotency-Key")); v != "" {
		return v, true
	}
	return "", false
}
