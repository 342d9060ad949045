package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func geminiStub(t *testing.T, status int, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s; want POST", r.Method)
		}
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("path = %s; want generateContent", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("key = %q; want test-key", r.URL.Query().Get("key"))
		}
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
			},
		})
	}))
}

func TestGeminiClient_Generate(t *testing.T) {
	srv := geminiStub(t, http.StatusOK, "  RELEVANT\n")
	defer srv.Close()

	c := NewGeminiClient(GeminiConfig{APIKey: "test-key", BaseURL: srv.URL})
	out, err := c.Generate(context.Background(), "is this a complaint?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "RELEVANT" {
		t.Fatalf("out = %q; want trimmed RELEVANT", out)
	}
}

func TestGeminiClient_Generate_APIError(t *testing.T) {
	srv := geminiStub(t, http.StatusForbidden, "")
	defer srv.Close()

	c := NewGeminiClient(GeminiConfig{APIKey: "test-key", BaseURL: srv.URL})
	if _, err := c.Generate(context.Background(), "x"); err == nil {
		t.Fatalf("expected error on non-200 response")
	}
}

func TestGeminiClient_Generate_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(GeminiConfig{APIKey: "test-key", BaseURL: srv.URL})
	if _, err := c.Generate(context.Background(), "x"); err == nil {
		t.Fatalf("expected error on empty candidates")
	}
}

func TestMatchLabel(t *testing.T) {
	cases := []struct {
		out    string
		labels []string
		want   string
		ok     bool
	}{
		{"relevant", []string{LabelNotRelevant, LabelRelevant}, LabelRelevant, true},
		{"NOT_RELEVANT, sorry", []string{LabelNotRelevant, LabelRelevant}, LabelNotRelevant, true},
		{"The state is escalation_pending now", []string{LabelAwaitingInfo, LabelEscalationPending, LabelResolved, LabelOffTopic, LabelOpen}, LabelEscalationPending, true},
		{"no idea", []string{LabelComplaint, LabelInquiry}, "", false},
	}
	for _, tc := range cases {
		got, ok := MatchLabel(tc.out, tc.labels...)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("MatchLabel(%q) = %q,%v; want %q,%v", tc.out, got, ok, tc.want, tc.ok)
		}
	}
}

func TestWindow(t *testing.T) {
	h := []Message{{Role: "user", Content: "a"}, {Role: "bot", Content: "b"}, {Role: "user", Content: "c"}}
	if got := Window(h, 2); len(got) != 2 || got[0].Content != "b" {
		t.Fatalf("Window(2) = %+v", got)
	}
	if got := Window(h, 0); len(got) != 3 {
		t.Fatalf("Window(0) should return all, got %+v", got)
	}
}
