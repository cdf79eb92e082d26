package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/taskstream/taskstream-api/internal/dto"
	apierrors "github.com/taskstream/taskstream-api/internal/errors"
	"github.com/taskstream/taskstream-api/internal/middleware"
	"github.com/taskstream/taskstream-api/internal/services"
)

// NotificationHandler coordinates notification-related HTTP handlers.
type NotificationHandler struct {
	notificationService *services.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

// ListNotifications returns the user's notifications, newest first.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	notifications, err := h.notificationService.ListForUser(userID)
	if err != nil {
		respondNotificationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": dto.ToNotificationDTOs(notifications)})
}

// MarkAsRead marks one notification as read. Idempotent.
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.notificationService.MarkAsRead(id, userID); err != nil {
		respondNotificationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkAllAsRead marks all of the user's notifications as read. Idempotent.
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	if err := h.notificationService.MarkAllAsRead(userID); err != nil {
		respondNotificationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// respondNotificationError maps notification service errors to HTTP responses.
func respondNotificationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotificationNotFound):
		apierrors.NotFound(c, "Notification not found")
	default:
		log.WithError(err).Error("notification request failed")
		apierrors.InternalError(c, "")
	}
}
