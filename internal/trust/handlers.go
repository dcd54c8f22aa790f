package trust

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/trustra/internal/marketplace"
	"github.com/mbd888/trustra/internal/validation"
)

// MaxBatchSize caps POST /trust/batch.
const MaxBatchSize = 100

// Handler provides HTTP endpoints for trust scores.
type Handler struct {
	service *Service
}

// NewHandler creates a trust handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up trust endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/compute-trust", h.ComputeTrust)
	r.GET("/trust/:seller_id", h.GetTrust)
	r.POST("/trust/batch", h.GetBatchTrust)
}

// ComputeTrustRequest is the body of POST /compute-trust.
type ComputeTrustRequest struct {
	SellerID string `json:"seller_id"`
}

// BatchRequest is the body of POST /trust/batch.
type BatchRequest struct {
	SellerIDs []string `json:"seller_ids"`
}

// BatchResponse is returned by POST /trust/batch.
type BatchResponse struct {
	Results []*Result `json:"results"`
	Count   int       `json:"count"`
}

// ComputeTrust scores the seller named in the body.
// POST /v1/compute-trust
func (h *Handler) ComputeTrust(c *gin.Context) {
	var req ComputeTrustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain 'seller_id'",
		})
		return
	}
	h.respond(c, req.SellerID)
}

// GetTrust scores the seller in the path.
// GET /v1/trust/:seller_id
func (h *Handler) GetTrust(c *gin.Context) {
	h.respond(c, c.Param("seller_id"))
}

func (h *Handler) respond(c *gin.Context, sellerID string) {
	if err := validation.ValidateSellerID(sellerID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_seller_id",
			"message": err.Error(),
		})
		return
	}
	res, err := h.service.Compute(c.Request.Context(), sellerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetBatchTrust scores up to MaxBatchSize sellers.
// POST /v1/trust/batch
func (h *Handler) GetBatchTrust(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain 'seller_ids' array",
		})
		return
	}
	if len(req.SellerIDs) > MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "too_many_sellers",
			"message": "Maximum 100 sellers per batch request",
		})
		return
	}
	if errs := validation.Validate(validation.SellerIDs("seller_ids", req.SellerIDs, MaxBatchSize)); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	results, err := h.service.ScoreBatch(c.Request.Context(), req.SellerIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, BatchResponse{Results: results, Count: len(results)})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, marketplace.ErrSourceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "source_unavailable",
			"message": "Seller data is temporarily unavailable",
		})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":   "timeout",
			"message": "Trust computation did not finish in time",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to compute trust score",
		})
	}
}
