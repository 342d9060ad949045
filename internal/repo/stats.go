// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-complaint-backend/internal/domain"
)

// ComplaintsStats returns aggregate metadata for the complaints table: the
// total number of rows and the maximum UpdatedAt timestamp among them.
// When no complaints exist, the returned count is 0 and maxUpdatedAt is nil.
func ComplaintsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Complaint{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// ConversationStats returns aggregate metadata for a complaint's log: the total
// number of entries and the timestamp of the newest one. When the log is empty,
// the returned count is 0 and lastCreatedAt is nil.
func ConversationStats(ctx context.Context, db *gorm.DB, complaintID string) (count int64, lastCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ConversationEntry{}).Where("complaint_id = ?", complaintID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
