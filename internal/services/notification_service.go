package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/taskstream/taskstream-api/internal/models"
	"github.com/taskstream/taskstream-api/internal/realtime"
	"github.com/taskstream/taskstream-api/internal/repository"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationService creates notification records and is the sole authority
// for marking them read.
type NotificationService struct {
	notificationRepo repository.NotificationRepository
	publisher        Publisher
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notificationRepo repository.NotificationRepository, publisher Publisher) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
		publisher:        publisher,
	}
}

// CreateNotificationInput represents input for creating a notification
type CreateNotificationInput struct {
	UserID  uint64
	Message string
	Type    string
}

// Create persists a notification with read=false and pushes notification:new
// to the recipient's private channel only.
func (s *NotificationService) Create(input CreateNotificationInput) (*models.Notification, error) {
	notification := &models.Notification{
		UserID:  input.UserID,
		Message: input.Message,
		Type:    input.Type,
	}

	if err := s.notificationRepo.Create(notification); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	s.publisher.NotifyUser(notification.UserID, realtime.EventNotificationNew, notification)

	return notification, nil
}

// ListForUser returns the user's notifications, newest first
func (s *NotificationService) ListForUser(userID uint64) ([]models.Notification, error) {
	notifications, err := s.notificationRepo.ListByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// MarkAsRead marks one of the user's notifications as read. Marking an
// already-read notification is a no-op.
func (s *NotificationService) MarkAsRead(id, userID uint64) error {
	notification, err := s.notificationRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("failed to find notification: %w", err)
	}

	if notification.UserID != userID {
		return ErrNotificationNotFound
	}

	if err := s.notificationRepo.MarkAsRead(id); err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return nil
}

// MarkAllAsRead marks every notification of the user as read. Idempotent.
func (s *NotificationService) MarkAllAsRead(userID uint64) error {
	if err := s.notificationRepo.MarkAllAsRead(userID); err != nil {
		return fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	return nil
}
