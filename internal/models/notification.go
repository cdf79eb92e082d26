package models

import "time"

// Notification types emitted today. The column is an open string set so new
// task lifecycle events can add types without a migration.
const (
	NotificationTaskAssigned   = "TASK_ASSIGNED"
	NotificationTaskReassigned = "TASK_REASSIGNED"
)

type Notification struct {
	ID        uint64    `gorm:"primarykey" json:"id"`
	UserID    uint64    `gorm:"not null;index" json:"user_id"`
	Message   string    `gorm:"type:varchar(255);not null" json:"message"`
	Type      string    `gorm:"type:varchar(50);not null" json:"type"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"-"`
}
