package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/huangang/perfsentry/internal/middleware"
	"github.com/huangang/perfsentry/internal/services"
	"github.com/huangang/perfsentry/internal/utils"
	"github.com/huangang/perfsentry/pkg/logger"
	"github.com/huangang/perfsentry/pkg/response"
)

type NotificationHandler struct {
	notificationService *services.NotificationService
}

func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// List GET /api/notifications?limit=50
func (h *NotificationHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := h.notificationService.List(c.Request.Context(), middleware.GetUserID(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, items)
}

// Unread GET /api/notifications/unread
func (h *NotificationHandler) Unread(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	items, err := h.notificationService.Unread(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"items": items, "count": len(items)})
}

// MarkRead PUT /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notificationService.MarkRead(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// MarkAllRead PUT /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.notificationService.MarkAllRead(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"updated": n})
}

// Stream pushes new notifications as server-sent events.
// GET /api/notifications/stream?token=...
//
// EventSource cannot set headers, so the token may come from the query.
func (h *NotificationHandler) Stream(c *gin.Context) {
	hub := h.notificationService.Hub()
	if hub == nil {
		response.Error(c, response.Unavailable("live notifications are disabled"))
		return
	}

	token := c.Query("token")
	if token == "" {
		token, _ = middleware.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		response.Unauthorized(c, "missing token")
		return
	}
	claims, err := utils.ParseToken(token)
	if err != nil {
		response.Unauthorized(c, "invalid token")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.NewString()
	events := hub.Subscribe(clientID, claims.UserID)
	defer hub.Unsubscribe(clientID)
	logger.Info().Str("client_id", clientID).Uint("user_id", claims.UserID).
		Int("total", hub.ClientCount()).Msg("[Notification] stream connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error().Err(err).Msg("[Notification] marshal stream event")
				return true
			}
			fmt.Fprintf(w, "event: notification\ndata: %s\n\n", data)
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
