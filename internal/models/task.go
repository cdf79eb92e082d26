package models

import (
	"time"

	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskStatusToDo       TaskStatus = "ToDo"
	TaskStatusInProgress TaskStatus = "InProgress"
	TaskStatusReview     TaskStatus = "Review"
	TaskStatusCompleted  TaskStatus = "Completed"
)

// Valid reports whether the status is one of the known values.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusToDo, TaskStatusInProgress, TaskStatusReview, TaskStatusCompleted:
		return true
	}
	return false
}

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "Low"
	TaskPriorityMedium TaskPriority = "Medium"
	TaskPriorityHigh   TaskPriority = "High"
	TaskPriorityUrgent TaskPriority = "Urgent"
)

// Valid reports whether the priority is one of the known values.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

type Task struct {
	ID           uint64         `gorm:"primarykey" json:"id"`
	Title        string         `gorm:"type:varchar(100);not null" json:"title"`
	Description  string         `gorm:"type:text;not null" json:"description"`
	DueDate      time.Time      `gorm:"not null" json:"due_date"`
	Priority     TaskPriority   `gorm:"type:varchar(10);not null" json:"priority"`
	Status       TaskStatus     `gorm:"type:varchar(20);not null;default:'ToDo'" json:"status"`
	CreatorID    uint64         `gorm:"not null;index" json:"creator_id"`
	AssignedToID uint64         `gorm:"not null;index" json:"assigned_to_id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Creator    User `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	AssignedTo User `gorm:"foreignKey:AssignedToID" json:"assigned_to,omitempty"`
}
