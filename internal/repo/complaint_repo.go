// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Complaint
// model.
//
// All functions accept a *gorm.DB handle, making them safe for use within
// transactions or connection-scoped operations. They follow the "thin
// repository" approach: no business logic, only CRUD persistence and query
// composition.
//
// Error semantics:
//   - When a complaint is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.ComplaintService and the conversation controller's Store
// port) which enforces business rules on top of it.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-complaint-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// NewComplaintID generates an identifier of the form COMP-<YYYYMMDD>-<4-hex>.
// The random suffix is the first four characters of a UUIDv4, so collisions
// within a day are possible but vanishingly rare; the store does not guard
// against them.
func NewComplaintID(now time.Time) string {
	return "COMP-" + now.Format("20060102") + "-" + strings.Split(uuid.NewString(), "-")[0][:4]
}

// CreateComplaint inserts a new complaint with status "Open" together with the
// opening pair of conversation entries (the user description and the bot's
// initial response), in one transaction. It returns the generated complaint id.
func CreateComplaint(ctx context.Context, db *gorm.DB, description, initialResponse string) (string, error) {
	id := NewComplaintID(time.Now().UTC())
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c := &domain.Complaint{
			ID:          id,
			Description: description,
			Status:      domain.StatusOpen,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		for _, e := range []domain.ConversationEntry{
			{ComplaintID: id, Role: "user", Content: description, CreatedAt: time.Now().UTC()},
			{ComplaintID: id, Role: "bot", Content: initialResponse, CreatedAt: time.Now().UTC()},
		} {
			if err := tx.Create(&e).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetComplaint fetches a single complaint by id. If the record does not exist,
// it returns ErrNotFound. On other DB errors, the raw error is returned.
func GetComplaint(ctx context.Context, db *gorm.DB, id string) (*domain.Complaint, error) {
	var c domain.Complaint
	err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateComplaintStatus sets the status (and, when non-empty, the resolution
// note) of a complaint, bumping updated_at. If no rows are affected the
// complaint is missing and ErrNotFound is returned.
func UpdateComplaintStatus(ctx context.Context, db *gorm.DB, id, status, resolution string) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if resolution != "" {
		updates["resolution"] = resolution
	}
	res := db.WithContext(ctx).
		Model(&domain.Complaint{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListComplaints returns all complaints ordered by creation time descending.
func ListComplaints(ctx context.Context, db *gorm.DB) ([]domain.Complaint, error) {
	var out []domain.Complaint
	err := db.WithContext(ctx).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// CountComplaints returns the total number of complaints.
func CountComplaints(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Complaint{}).
		Count(&total).Error
	return total, err
}

// ListComplaintsPage returns a paginated slice of complaints ordered by
// creation time descending. Use CountComplaints to obtain the total for
// pagination metadata.
func ListComplaintsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Complaint, error) {
	var out []domain.Complaint
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
