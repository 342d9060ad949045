package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tbourn/go-complaint-backend/internal/convo"
	"github.com/tbourn/go-complaint-backend/internal/domain"
	"github.com/tbourn/go-complaint-backend/internal/repo"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestComplaintService_GetAndNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewComplaintService(db)

	id, err := repo.CreateComplaint(context.Background(), db, "streetlight broken", "noted")
	if err != nil {
		t.Fatal(err)
	}

	c, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c.Description != "streetlight broken" || c.Status != domain.StatusOpen {
		t.Fatalf("unexpected record: %+v", c)
	}

	if _, err := svc.Get(context.Background(), "COMP-20240101-dead"); !errors.Is(err, ErrComplaintNotFound) {
		t.Fatalf("missing id: err = %v; want ErrComplaintNotFound", err)
	}
}

func TestComplaintService_UpdateStatus(t *testing.T) {
	db := newTestDB(t)
	svc := NewComplaintService(db)
	id, _ := repo.CreateComplaint(context.Background(), db, "water leak", "noted")

	if err := svc.UpdateStatus(context.Background(), id, "Closed", ""); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("invalid status: err = %v; want ErrInvalidStatus", err)
	}

	if err := svc.UpdateStatus(context.Background(), id, domain.StatusResolved, "pipe replaced"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	c, _ := svc.Get(context.Background(), id)
	if c.Status != domain.StatusResolved || c.Resolution == nil || *c.Resolution != "pipe replaced" {
		t.Fatalf("update not applied: %+v", c)
	}

	if err := svc.UpdateStatus(context.Background(), "COMP-20240101-dead", domain.StatusOpen, ""); !errors.Is(err, ErrComplaintNotFound) {
		t.Fatalf("missing id: err = %v; want ErrComplaintNotFound", err)
	}
}

func TestComplaintService_ListPage(t *testing.T) {
	db := newTestDB(t)
	svc := NewComplaintService(db)

	items, total, err := svc.ListPage(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ListPage() error = %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Fatalf("empty store: total=%d items=%d", total, len(items))
	}

	for i := 0; i < 3; i++ {
		if _, err := repo.CreateComplaint(context.Background(), db, "c", "r"); err != nil {
			t.Fatal(err)
		}
	}
	items, total, err = svc.ListPage(context.Background(), 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("page 1: total=%d items=%d; want 3 and 2", total, len(items))
	}
}

func TestComplaintService_MessagesPage(t *testing.T) {
	db := newTestDB(t)
	svc := NewComplaintService(db)
	id, _ := repo.CreateComplaint(context.Background(), db, "internet down", "noted")

	items, total, err := svc.MessagesPage(context.Background(), id, 1, 10)
	if err != nil {
		t.Fatalf("MessagesPage() error = %v", err)
	}
	if total != 2 || len(items) != 2 { // opening user/bot pair
		t.Fatalf("total=%d items=%d; want 2 and 2", total, len(items))
	}
	if items[0].Role != "user" || items[1].Role != "bot" {
		t.Fatalf("order wrong: %+v", items)
	}

	if _, _, err := svc.MessagesPage(context.Background(), "COMP-20240101-dead", 1, 10); !errors.Is(err, ErrComplaintNotFound) {
		t.Fatalf("missing id: err = %v; want ErrComplaintNotFound", err)
	}
}

func TestGormStore_MapsNotFound(t *testing.T) {
	db := newTestDB(t)
	st := NewGormStore(db)

	if _, err := st.GetComplaint(context.Background(), "COMP-20240101-dead"); !errors.Is(err, convo.ErrComplaintNotFound) {
		t.Fatalf("GetComplaint: err = %v; want convo.ErrComplaintNotFound", err)
	}
	if err := st.UpdateStatus(context.Background(), "COMP-20240101-dead", domain.StatusResolved, ""); !errors.Is(err, convo.ErrComplaintNotFound) {
		t.Fatalf("UpdateStatus: err = %v; want convo.ErrComplaintNotFound", err)
	}

	id, err := st.CreateComplaint(context.Background(), "transformer sparks", "Escalated to support team")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.AppendMessage(context.Background(), id, "user", "any update"); err != nil {
		t.Fatal(err)
	}
	msgs, err := st.ListMessages(context.Background(), id, -2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[1].Content != "any update" {
		t.Fatalf("tail wrong: %+v", msgs)
	}
}
