package repository

import (
	"time"

	"github.com/taskstream/taskstream-api/internal/models"
)

// TaskRepository defines the interface for task data access
type TaskRepository interface {
	// Create creates a new task
	Create(task *models.Task) error

	// FindByID finds a task by ID with optional preloading
	FindByID(id uint64, preload ...string) (*models.Task, error)

	// List retrieves tasks matching the filter, ordered by ascending due date
	List(filter TaskFilter) ([]models.Task, error)

	// Update updates a task
	Update(task *models.Task) error

	// Delete soft deletes a task
	Delete(id uint64) error

	// FindOverdue returns tasks assigned to the user whose due date has
	// passed and which are not completed
	FindOverdue(userID uint64, now time.Time) ([]models.Task, error)
}

// TaskFilter holds filtering options for listing tasks. All fields are
// optional and combine with AND semantics over exact matches.
type TaskFilter struct {
	Status       *models.TaskStatus
	Priority     *models.TaskPriority
	AssignedToID *uint64
	CreatorID    *uint64
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create creates a new user
	Create(user *models.User) error

	// FindByID finds a user by ID
	FindByID(id uint64) (*models.User, error)

	// FindByEmail finds a user by email
	FindByEmail(email string) (*models.User, error)

	// List returns all users
	List() ([]models.User, error)
}

// NotificationRepository defines the interface for notification data access
type NotificationRepository interface {
	// Create creates a new notification
	Create(notification *models.Notification) error

	// ListByUser returns a user's notifications, newest first
	ListByUser(userID uint64) ([]models.Notification, error)

	// FindByID finds a notification by ID
	FindByID(id uint64) (*models.Notification, error)

	// MarkAsRead flips the read flag on a notification. Marking an
	// already-read notification is a no-op.
	MarkAsRead(id uint64) error

	// MarkAllAsRead flips the read flag on all of a user's notifications
	MarkAllAsRead(userID uint64) error
}
