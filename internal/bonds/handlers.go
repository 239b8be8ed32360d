package bonds

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bondfi/bondfi/internal/oracle"
	"github.com/bondfi/bondfi/internal/pricing"
	"github.com/bondfi/bondfi/internal/users"
)

// Handlers exposes the bond marketplace HTTP API.
type Handlers struct {
	service *Service
}

// NewHandlers creates bond HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes mounts public marketplace routes.
func (h *Handlers) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/bonds", h.CreateBond)
	r.GET("/bonds", h.Market)
	r.GET("/bonds/:id", h.GetBond)
	r.GET("/bonds/:id/oracle", h.OracleStatus)
	r.POST("/bonds/:id/purchase", h.Purchase)
	r.GET("/purchases/:id/quote", h.QuoteResale)
	r.POST("/purchases/:id/list", h.ListForSale)
	r.GET("/listings", h.OpenListings)
	r.DELETE("/listings/:id", h.CancelListing)
	r.GET("/investors/:id/purchases", h.PurchasesByInvestor)
}

// RegisterAdminRoutes mounts admin-only routes. Callers must mount the group
// under a distinct prefix (the server uses /admin) wrapped with
// users.RequireAdmin; a static /bonds/pending sibling of /bonds/:id would
// conflict in gin's route tree.
func (h *Handlers) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/bonds", h.Pending)
	r.POST("/bonds/:id/approve", h.Approve)
	r.POST("/bonds/:id/oracle-override", h.OracleOverride)
}

// CreateBond handles POST /bonds
func (h *Handlers) CreateBond(c *gin.Context) {
	var req CreateBondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "name, issuer, faceValue, issueDate, maturityDate and totalUnits required",
		})
		return
	}
	req.ListerID = users.CurrentID(c)
	if req.ListerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "identity required to list a bond"})
		return
	}

	b, err := h.service.CreateBond(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidInput) || errors.Is(err, ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create bond"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"bond": b})
}

// Market handles GET /bonds — approved bonds only.
func (h *Handlers) Market(c *gin.Context) {
	list, err := h.service.Market(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list bonds"})
		return
	}
	if list == nil {
		list = []*Bond{}
	}
	c.JSON(http.StatusOK, gin.H{"bonds": list, "count": len(list)})
}

// Pending handles GET /admin/bonds — the review queue (admin only).
func (h *Handlers) Pending(c *gin.Context) {
	list, err := h.service.Pending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list bonds"})
		return
	}
	if list == nil {
		list = []*Bond{}
	}
	c.JSON(http.StatusOK, gin.H{"bonds": list, "count": len(list)})
}

// GetBond handles GET /bonds/:id
func (h *Handlers) GetBond(c *gin.Context) {
	b, err := h.service.GetBond(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrBondNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "bond not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load bond"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bond": b})
}

// OracleStatus handles GET /bonds/:id/oracle
func (h *Handlers) OracleStatus(c *gin.Context) {
	status, err := h.service.OracleStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrBondNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "bond not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to resolve oracle status"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"oracle": status})
}

// Approve handles POST /bonds/:id/approve (admin only).
//
// An approval is gated on the oracle verdict: a bond whose effective score is
// below the verified band cannot be approved unless the admin explicitly sets
// override=true, which should follow an audited oracle-override.
func (h *Handlers) Approve(c *gin.Context) {
	var req struct {
		Approve  bool   `json:"approve"`
		Reason   string `json:"reason"`
		Override bool   `json:"override"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid body"})
		return
	}

	bondID := c.Param("id")

	if req.Approve && !req.Override {
		status, err := h.service.OracleStatus(c.Request.Context(), bondID)
		if err != nil {
			if errors.Is(err, ErrBondNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "bond not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to resolve oracle status"})
			return
		}
		if !status.CanApprove {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "oracle_blocked",
				"message": status.Reason,
				"oracle":  status,
			})
			return
		}
	}

	result, err := h.service.ApproveBond(c.Request.Context(), bondID, req.Approve, users.CurrentID(c), req.Reason)
	if err != nil {
		if errors.Is(err, ErrBondNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "bond not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to finalize approval"})
		return
	}

	if !result.Success {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_finalized",
			"message": result.Reason,
			"status":  result.Status,
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// OracleOverride handles POST /bonds/:id/oracle-override (admin only).
func (h *Handlers) OracleOverride(c *gin.Context) {
	var req struct {
		Score float64 `json:"score"`
		Note  string  `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "score required"})
		return
	}

	ov, err := h.service.SetOracleOverride(c.Request.Context(), c.Param("id"), req.Score, users.CurrentID(c), req.Note)
	if err != nil {
		switch {
		case errors.Is(err, ErrBondNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "bond not found"})
		case errors.Is(err, oracle.ErrInvalidScore):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to record override"})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"override": ov})
}

// Purchase handles POST /bonds/:id/purchase
func (h *Handlers) Purchase(c *gin.Context) {
	investorID := users.CurrentID(c)
	if investorID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "identity required to purchase"})
		return
	}

	var req struct {
		Units int `json:"units" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "units required"})
		return
	}

	p, err := h.service.Purchase(c.Request.Context(), c.Param("id"), investorID, req.Units)
	if err != nil {
		switch {
		case errors.Is(err, ErrBondNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "bond not found"})
		case errors.Is(err, ErrNotApproved):
			c.JSON(http.StatusConflict, gin.H{"error": "not_approved", "message": "bond is not approved for sale"})
		case errors.Is(err, ErrInsufficientUnits):
			c.JSON(http.StatusConflict, gin.H{"error": "insufficient_units", "message": err.Error()})
		case errors.Is(err, ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to complete purchase"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"purchase": p})
}

// QuoteResale handles GET /purchases/:id/quote
func (h *Handlers) QuoteResale(c *gin.Context) {
	asOf := time.Now()
	if raw := c.Query("asOf"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "asOf must be RFC3339"})
			return
		}
		asOf = t
	}

	res, err := h.service.QuoteResale(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		switch {
		case errors.Is(err, ErrPurchaseNotFound), errors.Is(err, ErrBondNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "purchase not found"})
		case errors.Is(err, pricing.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to compute quote"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote": res})
}

// ListForSale handles POST /purchases/:id/list
func (h *Handlers) ListForSale(c *gin.Context) {
	sellerID := users.CurrentID(c)
	if sellerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "identity required to list a holding"})
		return
	}

	var req struct {
		Units    int     `json:"units" binding:"required"`
		AskPrice float64 `json:"askPrice" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "units and askPrice required"})
		return
	}

	l, err := h.service.ListForSale(c.Request.Context(), c.Param("id"), sellerID, req.Units, req.AskPrice)
	if err != nil {
		switch {
		case errors.Is(err, ErrPurchaseNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "purchase not found"})
		case errors.Is(err, ErrUnauthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "not your holding"})
		case errors.Is(err, ErrInsufficientUnits), errors.Is(err, ErrInvalidRequest), errors.Is(err, pricing.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create listing"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"listing": l})
}

// OpenListings handles GET /listings
func (h *Handlers) OpenListings(c *gin.Context) {
	list, err := h.service.OpenListings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list market"})
		return
	}
	if list == nil {
		list = []*SaleListing{}
	}
	c.JSON(http.StatusOK, gin.H{"listings": list, "count": len(list)})
}

// CancelListing handles DELETE /listings/:id
func (h *Handlers) CancelListing(c *gin.Context) {
	sellerID := users.CurrentID(c)
	if sellerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "identity required"})
		return
	}

	l, err := h.service.CancelListing(c.Request.Context(), c.Param("id"), sellerID)
	if err != nil {
		switch {
		case errors.Is(err, ErrListingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "listing not found"})
		case errors.Is(err, ErrUnauthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "not your listing"})
		case errors.Is(err, ErrInvalidRequest):
			c.JSON(http.StatusConflict, gin.H{"error": "invalid_state", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to cancel listing"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing": l})
}

// PurchasesByInvestor handles GET /investors/:id/purchases
func (h *Handlers) PurchasesByInvestor(c *gin.Context) {
	list, err := h.service.PurchasesByInvestor(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list purchases"})
		return
	}
	if list == nil {
		list = []*Purchase{}
	}
	c.JSON(http.StatusOK, gin.H{"purchases": list, "count": len(list)})
}
