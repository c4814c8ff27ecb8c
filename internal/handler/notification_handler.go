package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cbhlc-api/internal/models"
	"github.com/noah-isme/cbhlc-api/pkg/response"
)

type notificationService interface {
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// NotificationHandler exposes the signed in user's notifications.
type NotificationHandler struct {
	notifications notificationService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications notificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List godoc
// @Summary My notifications
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param unread query bool false "Only unread"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	userID := actorFromContext(c).UserID
	filter := models.NotificationFilter{UserID: userID, UnreadOnly: c.Query("unread") == "true"}
	filter.Page, filter.PageSize = paging(c)
	items, pagination, err := h.notifications.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	unread, err := h.notifications.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination, map[string]interface{}{"unread": unread})
}

// MarkRead godoc
// @Summary Mark a notification read
// @Tags Notifications
// @Security BearerAuth
// @Param id path string true "Notification ID"
// @Success 204
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), actorFromContext(c).UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllRead godoc
// @Summary Mark every notification read
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.notifications.MarkAllRead(c.Request.Context(), actorFromContext(c).UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": n}, nil)
}
