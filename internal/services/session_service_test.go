package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/tbourn/go-complaint-backend/internal/convo"
	"github.com/tbourn/go-complaint-backend/internal/llm"
)

// fakeStepper records calls and mutates the session like the real controller:
// it appends both turns and marks the session open.
type fakeStepper struct {
	mu    sync.Mutex
	calls int
	reply string
}

func (f *fakeStepper) Step(_ context.Context, s *convo.Session, msg string) string {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	s.Log = append(s.Log,
		llm.Message{Role: "user", Content: msg},
		llm.Message{Role: "bot", Content: f.reply},
	)
	s.State = convo.StateOpen
	return f.reply
}

func TestSessionService_Converse(t *testing.T) {
	st := &fakeStepper{reply: "noted"}
	svc := NewSessionService(st)

	res, err := svc.Converse(context.Background(), "sess-1", "  my internet is down  ")
	if err != nil {
		t.Fatalf("Converse() error = %v", err)
	}
	if res.Reply != "noted" {
		t.Fatalf("reply = %q", res.Reply)
	}
	if res.State != convo.StateOpen {
		t.Fatalf("state = %q", res.State)
	}

	// Second turn reuses the same session.
	if _, err := svc.Converse(context.Background(), "sess-1", "still down"); err != nil {
		t.Fatalf("second Converse() error = %v", err)
	}
	hist, err := svc.History(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(hist) != 4 {
		t.Fatalf("history length = %d; want 4", len(hist))
	}
	if hist[0].Content != "my internet is down" {
		t.Fatalf("message not trimmed before the controller: %q", hist[0].Content)
	}
}

func TestSessionService_ConverseValidation(t *testing.T) {
	svc := NewSessionService(&fakeStepper{reply: "x"})
	svc.MaxPromptRunes = 10

	if _, err := svc.Converse(context.Background(), "s", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("blank message: err = %v; want ErrEmptyMessage", err)
	}
	if _, err := svc.Converse(context.Background(), "s", strings.Repeat("a", 11)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("long message: err = %v; want ErrTooLong", err)
	}
	// Validation failures must not create session state.
	if _, err := svc.History(context.Background(), "s"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("History after rejected turns: err = %v; want ErrSessionNotFound", err)
	}
}

func TestSessionService_SessionsAreIsolated(t *testing.T) {
	svc := NewSessionService(&fakeStepper{reply: "x"})

	if _, err := svc.Converse(context.Background(), "a", "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Converse(context.Background(), "b", "hello"); err != nil {
		t.Fatal(err)
	}

	ha, _ := svc.History(context.Background(), "a")
	hb, _ := svc.History(context.Background(), "b")
	if len(ha) != 2 || len(hb) != 2 {
		t.Fatalf("history lengths = %d, %d; want 2 each", len(ha), len(hb))
	}
}

func TestSessionService_Clear(t *testing.T) {
	svc := NewSessionService(&fakeStepper{reply: "x"})
	if _, err := svc.Converse(context.Background(), "s", "hello"); err != nil {
		t.Fatal(err)
	}

	svc.Clear(context.Background(), "s")
	if _, err := svc.History(context.Background(), "s"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("History after Clear: err = %v; want ErrSessionNotFound", err)
	}

	// Clearing an unknown session is a no-op.
	svc.Clear(context.Background(), "never-seen")
}

func TestSessionService_ConcurrentTurns(t *testing.T) {
	st := &fakeStepper{reply: "x"}
	svc := NewSessionService(st)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Converse(context.Background(), "shared", "hello"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	hist, err := svc.History(context.Background(), "shared")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 40 {
		t.Fatalf("history length = %d; want 40 (20 serialized turns)", len(hist))
	}
}
