package users

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers exposes account HTTP endpoints.
type Handlers struct {
	service *Service
}

// NewHandlers creates user HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes mounts public account routes.
func (h *Handlers) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/users", h.Register)
	r.GET("/users", h.List)
	r.GET("/users/:id", h.Get)
}

// RegisterAdminRoutes mounts admin-only account routes. Callers must wrap
// the group with RequireAdmin.
func (h *Handlers) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/users/:id/verify", h.Verify)
}

// Register handles POST /users
func (h *Handlers) Register(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
		Role Role   `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name required"})
		return
	}

	u, err := h.service.Register(c.Request.Context(), req.Name, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrNameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "name_taken", "message": "name already in use"})
		case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrInvalidName):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to register user"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": u})
}

// Get handles GET /users/:id
func (h *Handlers) Get(c *gin.Context) {
	u, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// List handles GET /users
func (h *Handlers) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list users"})
		return
	}
	if list == nil {
		list = []*User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": list, "count": len(list)})
}

// Verify handles POST /users/:id/verify (admin only)
func (h *Handlers) Verify(c *gin.Context) {
	var req struct {
		Approve bool   `json:"approve"`
		Reason  string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}

	u, err := h.service.Verify(c.Request.Context(), c.Param("id"), CurrentID(c), req.Approve, req.Reason)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to update user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}
