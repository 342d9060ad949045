// Package domain defines the persistence models for complaints and their
// conversation logs. These types are mapped with GORM and form the core data
// layer of the complaint-intake application.
package domain

import "time"

// Complaint status values. The store accepts exactly these three labels; the
// conversation controller and the operator API both write them verbatim.
const (
	StatusOpen       = "Open"
	StatusInProgress = "In Progress"
	StatusResolved   = "Resolved"
)

// ValidStatus reports whether s is one of the accepted complaint statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// Complaint represents a tracked issue registered during a conversation.
//
// Fields:
//   - ID: generated identifier of the form COMP-<YYYYMMDD>-<4-hex>. Collisions
//     are possible but not guarded, matching the id contract of the intake flow.
//   - Description: the anchored user message that opened the complaint.
//   - Status: one of "Open", "In Progress", "Resolved" (enforced by DB constraint).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - Resolution: optional free-text note recorded when the complaint is closed.
type Complaint struct {
	ID          string    `json:"id"          gorm:"type:varchar(32);primaryKey"`
	Description string    `json:"description" gorm:"type:text;not null"`
	Status      string    `json:"status"      gorm:"type:varchar(16);not null;check:status IN ('Open','In Progress','Resolved');index:idx_complaint_status"`
	CreatedAt   time.Time `json:"created_at"  gorm:"index:idx_complaint_created"`
	UpdatedAt   time.Time `json:"updated_at"`
	Resolution  *string   `json:"resolution,omitempty" gorm:"type:text"`
}

// TableName returns the database table name for Complaint.
func (Complaint) TableName() string { return "complaints" }

// ConversationEntry is one utterance in a complaint's persisted log. Entries
// are append-only and ordered by timestamp; roles are "user" or "bot".
type ConversationEntry struct {
	ID          uint      `json:"id"           gorm:"primaryKey;autoIncrement"`
	ComplaintID string    `json:"complaint_id" gorm:"type:varchar(32);not null;index:idx_complaint_conv,priority:1"`
	Role        string    `json:"role"         gorm:"type:varchar(8);not null;check:role IN ('user','bot')"`
	Content     string    `json:"content"      gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at"   gorm:"index:idx_complaint_conv,priority:2"`

	// Complaint is the parent record. Entries are cascade-deleted if the
	// complaint row is ever removed.
	Complaint Complaint `json:"-" gorm:"foreignKey:ComplaintID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ConversationEntry.
func (ConversationEntry) TableName() string { return "complaint_conversations" }
