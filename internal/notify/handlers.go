package notify

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers exposes notification HTTP endpoints.
type Handlers struct {
	service *Service
}

// NewHandlers creates notification HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes mounts notification routes on the given router group.
func (h *Handlers) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/notifications", h.ListByUser)
	r.POST("/notifications/:id/read", h.MarkRead)
}

// ListByUser handles GET /users/:id/notifications
func (h *Handlers) ListByUser(c *gin.Context) {
	notifications, err := h.service.ListByUser(c.Request.Context(), c.Param("id"), 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "failed to list notifications",
		})
		return
	}
	if notifications == nil {
		notifications = []*Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications, "count": len(notifications)})
}

// MarkRead handles POST /notifications/:id/read
func (h *Handlers) MarkRead(c *gin.Context) {
	n, err := h.service.MarkRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "notification not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "failed to update notification",
		})
		return
	}
	c.JSON(http.StatusOK, n)
}
