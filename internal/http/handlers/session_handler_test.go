package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-complaint-backend/internal/convo"
	"github.com/tbourn/go-complaint-backend/internal/domain"
	"github.com/tbourn/go-complaint-backend/internal/llm"
	"github.com/tbourn/go-complaint-backend/internal/services"
)

// fakeSessionSvc is a scriptable SessionService.
type fakeSessionSvc struct {
	converse func(ctx context.Context, sessionID, message string) (*services.ConverseResult, error)
	history  func(ctx context.Context, sessionID string) ([]llm.Message, error)
	cleared  []string
}

func (f *fakeSessionSvc) Converse(ctx context.Context, sessionID, message string) (*services.ConverseResult, error) {
	return f.converse(ctx, sessionID, message)
}

func (f *fakeSessionSvc) History(ctx context.Context, sessionID string) ([]llm.Message, error) {
	if f.history == nil {
		return nil, services.ErrSessionNotFound
	}
	return f.history(ctx, sessionID)
}

func (f *fakeSessionSvc) Clear(_ context.Context, sessionID string) {
	f.cleared = append(f.cleared, sessionID)
}

// fakeComplaintSvc is a scriptable ComplaintService.
type fakeComplaintSvc struct {
	listPage     func(ctx context.Context, page, pageSize int) ([]domain.Complaint, int64, error)
	get          func(ctx context.Context, id string) (*domain.Complaint, error)
	updateStatus func(ctx context.Context, id, status, resolution string) error
	messagesPage func(ctx context.Context, id string, page, pageSize int) ([]domain.ConversationEntry, int64, error)
}

func (f *fakeComplaintSvc) ListPage(ctx context.Context, page, pageSize int) ([]domain.Complaint, int64, error) {
	return f.listPage(ctx, page, pageSize)
}

func (f *fakeComplaintSvc) Get(ctx context.Context, id string) (*domain.Complaint, error) {
	return f.get(ctx, id)
}

func (f *fakeComplaintSvc) UpdateStatus(ctx context.Context, id, status, resolution string) error {
	return f.updateStatus(ctx, id, status, resolution)
}

func (f *fakeComplaintSvc) MessagesPage(ctx context.Context, id string, page, pageSize int) ([]domain.ConversationEntry, int64, error) {
	return f.messagesPage(ctx, id, page, pageSize)
}

func newTestRouter(sess SessionService, comp ComplaintService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(sess, comp, nil)
	r.POST("/sessions/:id/messages", h.Converse)
	r.GET("/sessions/:id/messages", h.SessionHistory)
	r.DELETE("/sessions/:id", h.ClearSession)
	r.GET("/complaints", h.ListComplaints)
	r.GET("/complaints/:id", h.GetComplaint)
	r.GET("/complaints/:id/messages", h.ListComplaintMessages)
	r.PUT("/complaints/:id/status", h.UpdateComplaintStatus)
	return r
}

func TestConverse_OK(t *testing.T) {
	sess := &fakeSessionSvc{
		converse: func(_ context.Context, sessionID, message string) (*services.ConverseResult, error) {
			if sessionID != "sess-1" {
				t.Fatalf("sessionID = %q", sessionID)
			}
			if message != "my internet is down" {
				t.Fatalf("message = %q; sanitization lost", message)
			}
			return &services.ConverseResult{
				Reply:       "noted",
				State:       convo.StateOpen,
				ComplaintID: "COMP-20240101-ab12",
			}, nil
		},
	}
	r := newTestRouter(sess, &fakeComplaintSvc{})

	body := strings.NewReader(`{"message":"  my internet is down\r\n\r\n\r\n"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/messages", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp ConverseResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Reply != "noted" || resp.State != convo.StateOpen || resp.ComplaintID != "COMP-20240101-ab12" {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestConverse_BadInput(t *testing.T) {
	r := newTestRouter(&fakeSessionSvc{
		converse: func(context.Context, string, string) (*services.ConverseResult, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}, &fakeComplaintSvc{})

	cases := []struct {
		name string
		url  string
		body string
	}{
		{"missing message", "/sessions/s1/messages", `{}`},
		{"blank message", "/sessions/s1/messages", `{"message":"   "}`},
		{"invalid session id", "/sessions/bad%20id/messages", `{"message":"hi"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, tc.url, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d; want 400", w.Code)
			}
		})
	}
}

func TestConverse_ServiceErrors(t *testing.T) {
	sess := &fakeSessionSvc{
		converse: func(context.Context, string, string) (*services.ConverseResult, error) {
			return nil, services.ErrTooLong
		},
	}
	r := newTestRouter(sess, &fakeComplaintSvc{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sessions/s1/messages", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("ErrTooLong: status = %d; want 400", w.Code)
	}
}

func TestSessionHistory(t *testing.T) {
	sess := &fakeSessionSvc{
		converse: func(context.Context, string, string) (*services.ConverseResult, error) { return nil, nil },
		history: func(_ context.Context, sessionID string) ([]llm.Message, error) {
			if sessionID == "known" {
				return []llm.Message{
					{Role: "user", Content: "hi"},
					{Role: "bot", Content: "hello"},
				}, nil
			}
			return nil, services.ErrSessionNotFound
		},
	}
	r := newTestRouter(sess, &fakeComplaintSvc{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/known/messages", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].Role != "user" {
		t.Fatalf("unexpected transcript: %+v", resp.Messages)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/unknown/messages", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown session: status = %d; want 404", w.Code)
	}
}

func TestClearSession(t *testing.T) {
	sess := &fakeSessionSvc{
		converse: func(context.Context, string, string) (*services.ConverseResult, error) { return nil, nil },
	}
	r := newTestRouter(sess, &fakeComplaintSvc{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/sessions/sess-9", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d; want 204", w.Code)
	}
	if len(sess.cleared) != 1 || sess.cleared[0] != "sess-9" {
		t.Fatalf("cleared = %v", sess.cleared)
	}
}
