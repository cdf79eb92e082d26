package services

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	apierrors "github.com/taskstream/taskstream-api/internal/errors"
	"github.com/taskstream/taskstream-api/internal/models"
	"github.com/taskstream/taskstream-api/internal/realtime"
	"github.com/taskstream/taskstream-api/internal/repository"
)

var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrNotTaskCreator       = errors.New("only the task creator can delete this task")
	ErrTaskPermissionDenied = errors.New("user does not have permission to modify this task")
)

const maxTitleLength = 100

// TaskService handles task business logic. Mutations persist first, then
// notify the assignee and push events to connected sessions.
type TaskService struct {
	taskRepo            repository.TaskRepository
	userRepo            repository.UserRepository
	notificationService *NotificationService
	publisher           Publisher
}

// NewTaskService creates a new TaskService
func NewTaskService(
	taskRepo repository.TaskRepository,
	userRepo repository.UserRepository,
	notificationService *NotificationService,
	publisher Publisher,
) *TaskService {
	return &TaskService{
		taskRepo:            taskRepo,
		userRepo:            userRepo,
		notificationService: notificationService,
		publisher:           publisher,
	}
}

// CreateTaskInput represents input for creating a task
type CreateTaskInput struct {
	Title        string
	Description  string
	DueDate      time.Time
	Priority     models.TaskPriority
	AssignedToID uint64
}

// UpdateTaskInput represents a partial update. Every field is independently
// optional; absence means unchanged.
type UpdateTaskInput struct {
	Title        *string
	Description  *string
	DueDate      *time.Time
	Priority     *models.TaskPriority
	Status       *models.TaskStatus
	AssignedToID *uint64
}

// ListTasksInput represents filters for listing tasks
type ListTasksInput struct {
	Status       *models.TaskStatus
	Priority     *models.TaskPriority
	AssignedToID *uint64
	CreatorID    *uint64
}

// Dashboard aggregates a user's task lists with summary counts.
type Dashboard struct {
	AssignedTasks []models.Task  `json:"assigned_tasks"`
	CreatedTasks  []models.Task  `json:"created_tasks"`
	OverdueTasks  []models.Task  `json:"overdue_tasks"`
	Stats         DashboardStats `json:"stats"`
}

// DashboardStats holds the per-list counts.
type DashboardStats struct {
	TotalAssigned int `json:"total_assigned"`
	TotalCreated  int `json:"total_created"`
	TotalOverdue  int `json:"total_overdue"`
}

// CreateTask validates input, persists the task with status ToDo, notifies
// the assignee and broadcasts task:created.
func (s *TaskService) CreateTask(creatorID uint64, input CreateTaskInput) (*models.Task, error) {
	verr := &apierrors.ValidationError{}

	title := strings.TrimSpace(input.Title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		verr.Add("title", fmt.Sprintf("must be between 1 and %d characters", maxTitleLength))
	}
	if strings.TrimSpace(input.Description) == "" {
		verr.Add("description", "must not be empty")
	}
	if input.DueDate.IsZero() {
		verr.Add("due_date", "must be a valid date")
	}
	if !input.Priority.Valid() {
		verr.Add("priority", "must be one of Low, Medium, High, Urgent")
	}
	if input.AssignedToID == 0 {
		verr.Add("assigned_to_id", "is required")
	} else if _, err := s.userRepo.FindByID(input.AssignedToID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			verr.Add("assigned_to_id", "user does not exist")
		} else {
			return nil, fmt.Errorf("failed to verify assignee: %w", err)
		}
	}
	if verr.HasErrors() {
		return nil, verr
	}

	task := &models.Task{
		Title:        title,
		Description:  input.Description,
		DueDate:      input.DueDate,
		Priority:     input.Priority,
		Status:       models.TaskStatusToDo,
		CreatorID:    creatorID,
		AssignedToID: input.AssignedToID,
	}

	if err := s.taskRepo.Create(task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	created, err := s.taskRepo.FindByID(task.ID, "Creator", "AssignedTo")
	if err != nil {
		return nil, fmt.Errorf("failed to reload task: %w", err)
	}

	if _, err := s.notificationService.Create(CreateNotificationInput{
		UserID:  created.AssignedToID,
		Message: fmt.Sprintf("New task assigned: %s", created.Title),
		Type:    models.NotificationTaskAssigned,
	}); err != nil {
		return nil, fmt.Errorf("failed to notify assignee: %w", err)
	}

	s.publisher.Broadcast(realtime.EventTaskCreated, created)

	return created, nil
}

// GetTask returns a task with related data
func (s *TaskService) GetTask(taskID uint64) (*models.Task, error) {
	task, err := s.taskRepo.FindByID(taskID, "Creator", "AssignedTo")
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	return task, nil
}

// ListTasks returns tasks matching all provided filters, ordered by
// ascending due date
func (s *TaskService) ListTasks(input ListTasksInput) ([]models.Task, error) {
	tasks, err := s.taskRepo.List(repository.TaskFilter{
		Status:       input.Status,
		Priority:     input.Priority,
		AssignedToID: input.AssignedToID,
		CreatorID:    input.CreatorID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return tasks, nil
}

// UpdateTask applies a partial update after checking that the requester is
// the creator or current assignee. A change of assignee notifies the new
// assignee; every successful update broadcasts task:updated.
func (s *TaskService) UpdateTask(taskID, requesterID uint64, input UpdateTaskInput) (*models.Task, error) {
	task, err := s.taskRepo.FindByID(taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	if task.CreatorID != requesterID && task.AssignedToID != requesterID {
		return nil, ErrTaskPermissionDenied
	}

	verr := &apierrors.ValidationError{}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
			verr.Add("title", fmt.Sprintf("must be between 1 and %d characters", maxTitleLength))
		} else {
			task.Title = title
		}
	}
	if input.Description != nil {
		if strings.TrimSpace(*input.Description) == "" {
			verr.Add("description", "must not be empty")
		} else {
			task.Description = *input.Description
		}
	}
	if input.DueDate != nil {
		if input.DueDate.IsZero() {
			verr.Add("due_date", "must be a valid date")
		} else {
			task.DueDate = *input.DueDate
		}
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			verr.Add("priority", "must be one of Low, Medium, High, Urgent")
		} else {
			task.Priority = *input.Priority
		}
	}
	if input.Status != nil {
		if !input.Status.Valid() {
			verr.Add("status", "must be one of ToDo, InProgress, Review, Completed")
		} else {
			task.Status = *input.Status
		}
	}

	previousAssignee := task.AssignedToID
	if input.AssignedToID != nil && *input.AssignedToID != previousAssignee {
		if _, err := s.userRepo.FindByID(*input.AssignedToID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				verr.Add("assigned_to_id", "user does not exist")
			} else {
				return nil, fmt.Errorf("failed to verify assignee: %w", err)
			}
		} else {
			task.AssignedToID = *input.AssignedToID
		}
	}

	if verr.HasErrors() {
		return nil, verr
	}

	if err := s.taskRepo.Update(task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	updated, err := s.taskRepo.FindByID(task.ID, "Creator", "AssignedTo")
	if err != nil {
		return nil, fmt.Errorf("failed to reload task: %w", err)
	}

	if updated.AssignedToID != previousAssignee {
		if _, err := s.notificationService.Create(CreateNotificationInput{
			UserID:  updated.AssignedToID,
			Message: fmt.Sprintf("Task reassigned to you: %s", updated.Title),
			Type:    models.NotificationTaskReassigned,
		}); err != nil {
			return nil, fmt.Errorf("failed to notify assignee: %w", err)
		}
	}

	s.publisher.Broadcast(realtime.EventTaskUpdated, updated)

	return updated, nil
}

// DeleteTask deletes a task if the requester is the creator and broadcasts
// task:deleted.
func (s *TaskService) DeleteTask(taskID, requesterID uint64) error {
	task, err := s.taskRepo.FindByID(taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		return fmt.Errorf("failed to find task: %w", err)
	}

	if task.CreatorID != requesterID {
		return ErrNotTaskCreator
	}

	if err := s.taskRepo.Delete(taskID); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.publisher.Broadcast(realtime.EventTaskDeleted, realtime.TaskDeletedPayload{ID: taskID})

	return nil
}

// GetUserDashboard resolves the user's assigned, created and overdue task
// lists concurrently. Each list is an independent store round-trip; any
// failure fails the whole dashboard.
func (s *TaskService) GetUserDashboard(userID uint64) (*Dashboard, error) {
	var (
		assigned, created, overdue []models.Task
		assignedErr, createdErr    error
		overdueErr                 error
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		assigned, assignedErr = s.taskRepo.List(repository.TaskFilter{AssignedToID: &userID})
	}()
	go func() {
		defer wg.Done()
		created, createdErr = s.taskRepo.List(repository.TaskFilter{CreatorID: &userID})
	}()
	go func() {
		defer wg.Done()
		overdue, overdueErr = s.taskRepo.FindOverdue(userID, time.Now())
	}()
	wg.Wait()

	for _, err := range []error{assignedErr, createdErr, overdueErr} {
		if err != nil {
			return nil, fmt.Errorf("failed to load dashboard: %w", err)
		}
	}

	return &Dashboard{
		AssignedTasks: assigned,
		CreatedTasks:  created,
		OverdueTasks:  overdue,
		Stats: DashboardStats{
			TotalAssigned: len(assigned),
			TotalCreated:  len(created),
			TotalOverdue:  len(overdue),
		},
	}, nil
}
