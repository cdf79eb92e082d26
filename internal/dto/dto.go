package dto

import (
	"time"

	"github.com/taskstream/taskstream-api/internal/models"
)

// UserDTO represents a user in API responses
type UserDTO struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// TaskDTO represents a task in API responses
type TaskDTO struct {
	ID           uint64              `json:"id"`
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	DueDate      time.Time           `json:"due_date"`
	Priority     models.TaskPriority `json:"priority"`
	Status       models.TaskStatus   `json:"status"`
	CreatorID    uint64              `json:"creator_id"`
	AssignedToID uint64              `json:"assigned_to_id"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Creator      *UserDTO            `json:"creator,omitempty"`
	AssignedTo   *UserDTO            `json:"assigned_to,omitempty"`
}

// NotificationDTO represents a notification in API responses
type NotificationDTO struct {
	ID        uint64    `json:"id"`
	UserID    uint64    `json:"user_id"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// DashboardDTO represents the dashboard aggregate in API responses
type DashboardDTO struct {
	AssignedTasks []TaskDTO         `json:"assigned_tasks"`
	CreatedTasks  []TaskDTO         `json:"created_tasks"`
	OverdueTasks  []TaskDTO         `json:"overdue_tasks"`
	Stats         DashboardStatsDTO `json:"stats"`
}

// DashboardStatsDTO holds the dashboard counters
type DashboardStatsDTO struct {
	TotalAssigned int `json:"total_assigned"`
	TotalCreated  int `json:"total_created"`
	TotalOverdue  int `json:"total_overdue"`
}

// Conversion functions

// ToUserDTO converts a User model to UserDTO
func ToUserDTO(user models.User) UserDTO {
	return UserDTO{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
	}
}

// ToTaskDTO converts a Task model to TaskDTO
func ToTaskDTO(task models.Task) TaskDTO {
	dto := TaskDTO{
		ID:           task.ID,
		Title:        task.Title,
		Description:  task.Description,
		DueDate:      task.DueDate,
		Priority:     task.Priority,
		Status:       task.Status,
		CreatorID:    task.CreatorID,
		AssignedToID: task.AssignedToID,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
	}

	// Include relations if preloaded
	if task.Creator.ID != 0 {
		creator := ToUserDTO(task.Creator)
		dto.Creator = &creator
	}
	if task.AssignedTo.ID != 0 {
		assignee := ToUserDTO(task.AssignedTo)
		dto.AssignedTo = &assignee
	}

	return dto
}

// ToTaskDTOs converts a slice of tasks
func ToTaskDTOs(tasks []models.Task) []TaskDTO {
	items := make([]TaskDTO, len(tasks))
	for i, task := range tasks {
		items[i] = ToTaskDTO(task)
	}
	return items
}

// ToNotificationDTO converts a Notification model to NotificationDTO
func ToNotificationDTO(n models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		UserID:    n.UserID,
		Message:   n.Message,
		Type:      n.Type,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

// ToNotificationDTOs converts a slice of notifications
func ToNotificationDTOs(notifications []models.Notification) []NotificationDTO {
	items := make([]NotificationDTO, len(notifications))
	for i, n := range notifications {
		items[i] = ToNotificationDTO(n)
	}
	return items
}
