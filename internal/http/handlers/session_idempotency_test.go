package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/tbourn/go-complaint-backend/internal/domain"
	"github.com/tbourn/go-complaint-backend/internal/services"
)

func newIdempotencyDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Idempotency{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func postTurnWithKey(t *testing.T, r *gin.Engine, session, key string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+session+"/messages", strings.NewReader(`{"message":"my internet is down"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("Idempotency-Key", key)
	r.ServeHTTP(w, req)
	return w
}

func TestConverse_IdempotencyRecordHonorsConfiguredTTL(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newIdempotencyDB(t)

	sess := &fakeSessionSvc{
		converse: func(context.Context, string, string) (*services.ConverseResult, error) {
			return &services.ConverseResult{Reply: "noted"}, nil
		},
	}
	h := New(sess, &fakeComplaintSvc{}, db)
	h.IdempotencyTTL = 90 * time.Minute
	r := gin.New()
	r.POST("/sessions/:id/messages", h.Converse)

	if w := postTurnWithKey(t, r, "sess-ttl", "key-1"); w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var rec domain.Idempotency
	if err := db.Where("user_id = ? AND session_id = ? AND key = ?", "alice", "sess-ttl", "key-1").First(&rec).Error; err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if got := rec.ExpiresAt.Sub(rec.CreatedAt); got != 90*time.Minute {
		t.Fatalf("record TTL = %v; want 90m", got)
	}
}

func TestConverse_IdempotencyTTLFallsBackWhenUnset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newIdempotencyDB(t)

	sess := &fakeSessionSvc{
		converse: func(context.Context, string, string) (*services.ConverseResult, error) {
			return &services.ConverseResult{Reply: "noted"}, nil
		},
	}
	h := New(sess, &fakeComplaintSvc{}, db)
	r := gin.New()
	r.POST("/sessions/:id/messages", h.Converse)

	if w := postTurnWithKey(t, r, "sess-default", "key-1"); w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var rec domain.Idempotency
	if err := db.Where("session_id = ?", "sess-default").First(&rec).Error; err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if got := rec.ExpiresAt.Sub(rec.CreatedAt); got != defaultIdempotencyTTL {
		t.Fatalf("record TTL = %v; want %v", got, defaultIdempotencyTTL)
	}
}

func TestConverse_ReplayReturnsStoredReply(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newIdempotencyDB(t)

	calls := 0
	sess := &fakeSessionSvc{
		converse: func(context.Context, string, string) (*services.ConverseResult, error) {
			calls++
			return &services.ConverseResult{Reply: "first reply"}, nil
		},
	}
	h := New(sess, &fakeComplaintSvc{}, db)
	h.IdempotencyTTL = time.Hour
	r := gin.New()
	r.POST("/sessions/:id/messages", h.Converse)

	if w := postTurnWithKey(t, r, "sess-replay", "key-7"); w.Code != http.StatusOK {
		t.Fatalf("first turn: %d", w.Code)
	}
	w := postTurnWithKey(t, r, "sess-replay", "key-7")
	if w.Code != http.StatusOK {
		t.Fatalf("replay: %d", w.Code)
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay header missing")
	}
	if !strings.Contains(w.Body.String(), "first reply") {
		t.Fatalf("replay body = %s", w.Body.String())
	}
	if calls != 1 {
		t.Fatalf("service called %d times; replay must not advance the conversation", calls)
	}
}
