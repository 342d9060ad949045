// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// ConversationEntry log attached to each complaint.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-complaint-backend/internal/domain"
)

// AppendConversation appends one utterance to a complaint's log.
func AppendConversation(ctx context.Context, db *gorm.DB, complaintID, role, content string) (*domain.ConversationEntry, error) {
	e := &domain.ConversationEntry{
		ComplaintID: complaintID,
		Role:        role,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}
	return e, db.WithContext(ctx).Create(e).Error
}

// ListConversation returns entries ordered deterministically (CreatedAt ASC, ID ASC).
// A limit of 0 means no limit; a negative limit returns the most recent -limit
// entries in chronological order (used for the status report tail).
func ListConversation(ctx context.Context, db *gorm.DB, complaintID string, limit int) ([]domain.ConversationEntry, error) {
	var out []domain.ConversationEntry
	if limit < 0 {
		// Tail: newest N, then reverse into chronological order.
		err := db.WithContext(ctx).
			Where("complaint_id = ?", complaintID).
			Order("created_at DESC, id DESC").
			Limit(-limit).
			Find(&out).Error
		if err != nil {
			return nil, err
		}
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
		return out, nil
	}
	q := db.WithContext(ctx).
		Where("complaint_id = ?", complaintID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountConversation uses a raw COUNT so a missing table surfaces as an error.
func CountConversation(ctx context.Context, db *gorm.DB, complaintID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM complaint_conversations WHERE complaint_id = ?", complaintID).
		Scan(&total).Error
	return total, err
}

// ListConversationPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListConversationPage(ctx context.Context, db *gorm.DB, complaintID string, offset, limit int) ([]domain.ConversationEntry, error) {
	var out []domain.ConversationEntry
	err := db.WithContext(ctx).
		Where("complaint_id = ?", complaintID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
