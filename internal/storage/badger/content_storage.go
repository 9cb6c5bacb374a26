package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// ContentStorage implements the ContentStorage interface for Badger
type ContentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewContentStorage creates a new ContentStorage instance
func NewContentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ContentStorage {
	return &ContentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ContentStorage) InsertContent(ctx context.Context, content *models.Content) error {
	if content == nil {
		return fmt.Errorf("content is required")
	}
	if content.CreatedAt.IsZero() {
		content.CreatedAt = time.Now().UTC()
	}

	id, err := s.db.NextID("content")
	if err != nil {
		return err
	}
	content.ID = id
	if err := s.db.Store().Insert(content.ID, content); err != nil {
		return fmt.Errorf("failed to insert content: %w", err)
	}
	return nil
}

func (s *ContentStorage) GetContent(ctx context.Context, id uint64) (*models.Content, error) {
	var content models.Content
	if err := s.db.Store().Get(id, &content); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.NewNotFoundError("content", id)
		}
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	return &content, nil
}

func (s *ContentStorage) ListContentByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Content, error) {
	query := badgerhold.Where("UserID").Eq(userID).Index("UserID").SortBy("CreatedAt").Reverse()
	if offset > 0 {
		query = query.Skip(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.Content
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}

	result := make([]*models.Content, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

func (s *ContentStorage) DeleteContent(ctx context.Context, id uint64) error {
	if err := s.db.Store().Delete(id, &models.Content{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.NewNotFoundError("content", id)
		}
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}
