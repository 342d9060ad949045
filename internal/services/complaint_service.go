// Package services – ComplaintService
//
// This file implements ComplaintService, the operator-facing view over
// persisted complaints: paginated listing, single-record lookup, manual status
// updates, and the per-complaint conversation log. It validates status values
// and maps repository errors to service sentinels so handlers can translate
// them to HTTP results consistently.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-complaint-backend/internal/domain"
	"github.com/tbourn/go-complaint-backend/internal/repo"
)

// ComplaintService provides read and status-update operations on persisted
// complaints for the operator API.
type ComplaintService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewComplaintService constructs a ComplaintService.
func NewComplaintService(db *gorm.DB) *ComplaintService {
	return &ComplaintService{DB: db}
}

// ListPage returns a page of complaints, newest first, plus the total count.
// It applies defaults for invalid page/pageSize.
func (s *ComplaintService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Complaint, int64, error) {
	tr := otel.Tracer("services/ComplaintService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountComplaints(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Complaint{}, 0, nil
	}

	items, err := repo.ListComplaintsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// Get fetches a single complaint by id.
func (s *ComplaintService) Get(ctx context.Context, id string) (*domain.Complaint, error) {
	ctx, span := otel.Tracer("services/ComplaintService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("complaint.id", id)),
	)
	defer span.End()

	c, err := repo.GetComplaint(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrComplaintNotFound
		}
		return nil, err
	}
	return c, nil
}

// UpdateStatus sets a complaint's status and optional resolution note. The
// status must be one of the allowed values.
func (s *ComplaintService) UpdateStatus(ctx context.Context, id, status, resolution string) error {
	ctx, span := otel.Tracer("services/ComplaintService").Start(ctx, "UpdateStatus",
		trace.WithAttributes(
			attribute.String("complaint.id", id),
			attribute.String("complaint.status", status),
		),
	)
	defer span.End()

	if !domain.ValidStatus(status) {
		return ErrInvalidStatus
	}
	if err := repo.UpdateComplaintStatus(ctx, s.DB, id, status, resolution); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrComplaintNotFound
		}
		return err
	}
	return nil
}

// MessagesPage returns a page of the complaint's conversation log in
// chronological order, plus the total count. The complaint must exist.
func (s *ComplaintService) MessagesPage(ctx context.Context, id string, page, pageSize int) ([]domain.ConversationEntry, int64, error) {
	ctx, span := otel.Tracer("services/ComplaintService").Start(ctx, "MessagesPage",
		trace.WithAttributes(
			attribute.String("complaint.id", id),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if _, err := repo.GetComplaint(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrComplaintNotFound
		}
		return nil, 0, err
	}

	total, err := repo.CountConversation(ctx, s.DB, id)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ConversationEntry{}, 0, nil
	}

	items, err := repo.ListConversationPage(ctx, s.DB, id, offset, pageSize)
	return items, total, err
}
