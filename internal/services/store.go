package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-complaint-backend/internal/convo"
	"github.com/tbourn/go-complaint-backend/internal/domain"
	"github.com/tbourn/go-complaint-backend/internal/repo"
)

// GormStore adapts the repo layer to the conversation controller's Store
// port, translating repo.ErrNotFound into the controller's sentinel.
type GormStore struct {
	DB *gorm.DB
}

var _ convo.Store = (*GormStore)(nil)

// NewGormStore wraps db for use by the conversation controller.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (g *GormStore) CreateComplaint(ctx context.Context, description, initialResponse string) (string, error) {
	return repo.CreateComplaint(ctx, g.DB, description, initialResponse)
}

func (g *GormStore) GetComplaint(ctx context.Context, id string) (*domain.Complaint, error) {
	c, err := repo.GetComplaint(ctx, g.DB, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return c, nil
}

func (g *GormStore) UpdateStatus(ctx context.Context, id, status, resolution string) error {
	return mapNotFound(repo.UpdateComplaintStatus(ctx, g.DB, id, status, resolution))
}

func (g *GormStore) AppendMessage(ctx context.Context, id, role, content string) error {
	_, err := repo.AppendConversation(ctx, g.DB, id, role, content)
	return err
}

func (g *GormStore) ListMessages(ctx context.Context, id string, limit int) ([]domain.ConversationEntry, error) {
	return repo.ListConversation(ctx, g.DB, id, limit)
}

func mapNotFound(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return convo.ErrComplaintNotFound
	}
	return err
}
