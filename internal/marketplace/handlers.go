package marketplace

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/trustra/internal/pagination"
	"github.com/mbd888/trustra/internal/validation"
)

// Handler serves seller listings.
type Handler struct {
	source Source
}

// NewHandler creates a seller handler.
func NewHandler(source Source) *Handler {
	return &Handler{source: source}
}

// RegisterRoutes sets up seller endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/sellers", h.ListSellers)
	r.GET("/sellers/:seller_id", validation.SellerIDParamMiddleware(), h.GetSeller)
}

// ListSellers returns a page of sellers ordered by join time.
// GET /v1/sellers?limit=50&cursor=...
func (h *Handler) ListSellers(c *gin.Context) {
	limit := pagination.ParseLimit(c.Query("limit"))
	cur, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "Cursor is malformed",
		})
		return
	}

	q := SellerQuery{Limit: limit + 1}
	if cur != nil {
		q.AfterJoined = cur.At
		q.AfterID = cur.ID
	}

	sellers, err := h.source.ListSellers(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "source_unavailable",
			"message": "Seller data is temporarily unavailable",
		})
		return
	}

	page, next, more := pagination.ComputePage(sellers, limit, func(s *Seller) (time.Time, string) {
		return s.JoinedAt, s.ID
	})
	if page == nil {
		page = []*Seller{}
	}

	c.JSON(http.StatusOK, gin.H{
		"sellers":     page,
		"count":       len(page),
		"next_cursor": next,
		"has_more":    more,
	})
}

// GetSeller returns one seller.
func (h *Handler) GetSeller(c *gin.Context) {
	s, err := h.source.GetSeller(c.Request.Context(), c.Param("seller_id"))
	switch {
	case errors.Is(err, ErrSellerNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "seller_not_found",
			"message": "Seller not found",
		})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "source_unavailable",
			"message": "Seller data is temporarily unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, s)
}
