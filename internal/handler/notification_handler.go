package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/phd-portal-api/internal/models"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
	"github.com/noah-isme/phd-portal-api/pkg/response"
)

type notificationService interface {
	List(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, *models.Pagination, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
}

// NotificationHandler serves a user's notification feed.
type NotificationHandler struct {
	notifications notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(notifications notificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// RegisterRoutes mounts the notification endpoints on an authenticated group.
func (h *NotificationHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/notifications", h.List)
	group.GET("/notifications/unread-count", h.UnreadCount)
	group.PATCH("/notifications/read-all", h.MarkAllRead)
	group.PATCH("/notifications/:id/read", h.MarkRead)
}

// List returns the actor's notifications, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	items, pagination, err := h.notifications.List(c.Request.Context(), actor.UserID, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// UnreadCount returns the number of unread notifications.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	count, err := h.notifications.UnreadCount(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"unread": count}, nil)
}

// MarkRead marks one of the actor's notifications as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), actor.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllRead marks every unread notification as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.notifications.MarkAllRead(c.Request.Context(), actor.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
