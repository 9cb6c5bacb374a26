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

// NotificationStorage implements the NotificationStorage interface for Badger
type NotificationStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewNotificationStorage creates a new NotificationStorage instance
func NewNotificationStorage(db *BadgerDB, logger arbor.ILogger) interfaces.NotificationStorage {
	return &NotificationStorage{
		db:     db,
		logger: logger,
	}
}

func (s *NotificationStorage) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return fmt.Errorf("notification is required")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	id, err := s.db.NextID("notification")
	if err != nil {
		return err
	}
	n.ID = id
	if err := s.db.Store().Insert(n.ID, n); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (s *NotificationStorage) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	query := badgerhold.Where("UserID").Eq(userID).Index("UserID")
	if unreadOnly {
		query = query.And("Read").Eq(false)
	}
	query = query.SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.Notification
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	result := make([]*models.Notification, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

func (s *NotificationStorage) MarkRead(ctx context.Context, id uint64) error {
	var n models.Notification
	if err := s.db.Store().Get(id, &n); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.NewNotFoundError("notification", id)
		}
		return fmt.Errorf("failed to get notification: %w", err)
	}
	if n.Read {
		return nil
	}
	n.Read = true
	if err := s.db.Store().Update(id, &n); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}
