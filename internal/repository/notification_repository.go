package repository

import (
	"gorm.io/gorm"

	"github.com/taskstream/taskstream-api/internal/models"
)

// GormNotificationRepository is a GORM implementation of NotificationRepository
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &GormNotificationRepository{db: db}
}

// Create creates a new notification
func (r *GormNotificationRepository) Create(notification *models.Notification) error {
	return r.db.Create(notification).Error
}

// ListByUser returns a user's notifications, newest first
func (r *GormNotificationRepository) ListByUser(userID uint64) ([]models.Notification, error) {
	var notifications []models.Notification
	if err := r.db.
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

// FindByID finds a notification by ID
func (r *GormNotificationRepository) FindByID(id uint64) (*models.Notification, error) {
	var notification models.Notification
	if err := r.db.First(&notification, id).Error; err != nil {
		return nil, err
	}
	return &notification, nil
}

// MarkAsRead flips the read flag on a notification. Updating a notification
// that is already read affects zero rows and is not an error.
func (r *GormNotificationRepository) MarkAsRead(id uint64) error {
	return r.db.Model(&models.Notification{}).
		Where("id = ?", id).
		Update("read", true).Error
}

// MarkAllAsRead flips the read flag on all of a user's notifications
func (r *GormNotificationRepository) MarkAllAsRead(userID uint64) error {
	return r.db.Model(&models.Notification{}).
		Where("user_id = ? AND `read` = ?", userID, false).
		Update("read", true).Error
}
