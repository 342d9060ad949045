package domain

import (
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	if (Complaint{}).TableName() != "complaints" {
		t.Fatalf("Complaint.TableName() = %q; want %q", (Complaint{}).TableName(), "complaints")
	}
	if (ConversationEntry{}).TableName() != "complaint_conversations" {
		t.Fatalf("ConversationEntry.TableName() = %q; want %q", (ConversationEntry{}).TableName(), "complaint_conversations")
	}
	if (Idempotency{}).TableName() != "idempotency" {
		t.Fatalf("Idempotency.TableName() = %q; want %q", (Idempotency{}).TableName(), "idempotency")
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusOpen, StatusInProgress, StatusResolved} {
		if !ValidStatus(s) {
			t.Fatalf("ValidStatus(%q) = false; want true", s)
		}
	}
	for _, s := range []string{"", "open", "Closed", "RESOLVED"} {
		if ValidStatus(s) {
			t.Fatalf("ValidStatus(%q) = true; want false", s)
		}
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Complaint{}, &ConversationEntry{}, &Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&Complaint{}, &ConversationEntry{}, &Idempotency{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	if !m.HasIndex(&Complaint{}, "idx_complaint_status") {
		t.Fatalf("expected index idx_complaint_status on complaints")
	}
	if !m.HasIndex(&ConversationEntry{}, "idx_complaint_conv") {
		t.Fatalf("expected index idx_complaint_conv on complaint_conversations")
	}
	if !m.HasIndex(&Idempotency{}, "ux_user_session_key") {
		t.Fatalf("expected index ux_user_session_key on idempotency")
	}

	// Cascade: deleting a complaint removes its conversation entries.
	c := Complaint{ID: "COMP-20240101-ab12", Description: "streetlight broken", Status: StatusOpen}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("create complaint: %v", err)
	}
	e := ConversationEntry{ComplaintID: c.ID, Role: "user", Content: "streetlight broken"}
	if err := db.Create(&e).Error; err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if err := db.Delete(&Complaint{}, "id = ?", c.ID).Error; err != nil {
		t.Fatalf("delete complaint: %v", err)
	}
	var n int64
	if err := db.Model(&ConversationEntry{}).Where("complaint_id = ?", c.ID).Count(&n).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected cascade delete of conversation entries, still have %d", n)
	}
}
