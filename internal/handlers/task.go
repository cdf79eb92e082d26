package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/taskstream/taskstream-api/internal/dto"
	apierrors "github.com/taskstream/taskstream-api/internal/errors"
	"github.com/taskstream/taskstream-api/internal/middleware"
	"github.com/taskstream/taskstream-api/internal/models"
	"github.com/taskstream/taskstream-api/internal/services"
)

// TaskHandler coordinates task-related HTTP handlers.
type TaskHandler struct {
	taskService *services.TaskService
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
	}
}

// ListTasks returns tasks matching the optional query filters. Filters
// combine with AND semantics; results are ordered by ascending due date.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	var input services.ListTasksInput

	if v := c.Query("status"); v != "" {
		status := models.TaskStatus(v)
		if !status.Valid() {
			apierrors.BadRequest(c, "Invalid status filter")
			return
		}
		input.Status = &status
	}
	if v := c.Query("priority"); v != "" {
		priority := models.TaskPriority(v)
		if !priority.Valid() {
			apierrors.BadRequest(c, "Invalid priority filter")
			return
		}
		input.Priority = &priority
	}
	if v := c.Query("assigned_to_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			apierrors.BadRequest(c, "Invalid assigned_to_id filter")
			return
		}
		input.AssignedToID = &id
	}
	if v := c.Query("creator_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			apierrors.BadRequest(c, "Invalid creator_id filter")
			return
		}
		input.CreatorID = &id
	}

	tasks, err := h.taskService.ListTasks(input)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": dto.ToTaskDTOs(tasks)})
}

// CreateTask creates a new task.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	type CreateTaskRequest struct {
		Title        string    `json:"title"`
		Description  string    `json:"description"`
		DueDate      time.Time `json:"due_date"`
		Priority     string    `json:"priority"`
		AssignedToID uint64    `json:"assigned_to_id"`
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	task, err := h.taskService.CreateTask(userID, services.CreateTaskInput{
		Title:        req.Title,
		Description:  req.Description,
		DueDate:      req.DueDate,
		Priority:     models.TaskPriority(req.Priority),
		AssignedToID: req.AssignedToID,
	})
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": dto.ToTaskDTO(*task)})
}

// GetTask returns a specific task by ID.
func (h *TaskHandler) GetTask(c *gin.Context) {
	taskID, ok := parseIDParam(c)
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(taskID)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": dto.ToTaskDTO(*task)})
}

// UpdateTask partially updates a task. Every field is independently
// optional; absence means unchanged.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	taskID, ok := parseIDParam(c)
	if !ok {
		return
	}

	type UpdateTaskRequest struct {
		Title        *string    `json:"title"`
		Description  *string    `json:"description"`
		DueDate      *time.Time `json:"due_date"`
		Priority     *string    `json:"priority"`
		Status       *string    `json:"status"`
		AssignedToID *uint64    `json:"assigned_to_id"`
	}

	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	input := services.UpdateTaskInput{
		Title:        req.Title,
		Description:  req.Description,
		DueDate:      req.DueDate,
		AssignedToID: req.AssignedToID,
	}
	if req.Priority != nil {
		priority := models.TaskPriority(*req.Priority)
		input.Priority = &priority
	}
	if req.Status != nil {
		status := models.TaskStatus(*req.Status)
		input.Status = &status
	}

	task, err := h.taskService.UpdateTask(taskID, userID, input)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": dto.ToTaskDTO(*task)})
}

// DeleteTask deletes a task.
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	taskID, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(taskID, userID); err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Task deleted successfully"})
}

// GetDashboard returns the user's assigned, created and overdue tasks with
// summary counts.
func (h *TaskHandler) GetDashboard(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	dashboard, err := h.taskService.GetUserDashboard(userID)
	if err != nil {
		respondTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": dto.DashboardDTO{
		AssignedTasks: dto.ToTaskDTOs(dashboard.AssignedTasks),
		CreatedTasks:  dto.ToTaskDTOs(dashboard.CreatedTasks),
		OverdueTasks:  dto.ToTaskDTOs(dashboard.OverdueTasks),
		Stats: dto.DashboardStatsDTO{
			TotalAssigned: dashboard.Stats.TotalAssigned,
			TotalCreated:  dashboard.Stats.TotalCreated,
			TotalOverdue:  dashboard.Stats.TotalOverdue,
		},
	}})
}

// respondBindError maps a request body decode failure to a response. A
// malformed due_date carries field detail; anything else is a generic 400.
func respondBindError(c *gin.Context, err error) {
	var parseErr *time.ParseError
	if errors.As(err, &parseErr) {
		verr := &apierrors.ValidationError{}
		verr.Add("due_date", "must be a valid RFC 3339 date")
		apierrors.Validation(c, verr)
		return
	}
	apierrors.BadRequest(c, "Invalid request body")
}

// parseIDParam reads the :id route parameter, responding 400 on failure.
func parseIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apierrors.BadRequest(c, "Invalid id")
		return 0, false
	}
	return id, true
}

// respondTaskError maps task service errors to HTTP responses.
func respondTaskError(c *gin.Context, err error) {
	var verr *apierrors.ValidationError
	switch {
	case errors.As(err, &verr):
		apierrors.Validation(c, verr)
	case errors.Is(err, services.ErrTaskNotFound):
		apierrors.NotFound(c, "Task not found")
	case errors.Is(err, services.ErrNotTaskCreator),
		errors.Is(err, services.ErrTaskPermissionDenied):
		apierrors.Forbidden(c, "")
	default:
		log.WithError(err).Error("task request failed")
		apierrors.InternalError(c, "")
	}
}
