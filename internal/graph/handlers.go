package graph

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/trustra/internal/validation"
)

var emptyGraph, _ = Build(nil)

// Handler serves graph queries.
type Handler struct {
	store     *Store
	refresher *Refresher
}

// NewHandler creates a graph handler. refresher may be nil, in which case
// refresh requests are rejected.
func NewHandler(store *Store, refresher *Refresher) *Handler {
	return &Handler{store: store, refresher: refresher}
}

// RegisterRoutes sets up the public graph endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/graph/stats", h.GetStats)
	r.GET("/graph/:seller_id", h.GetSellerGraph)
	r.GET("/detect-collusion", h.DetectCollusion)
}

// RegisterAdminRoutes sets up endpoints that mutate graph state. The caller
// attaches the admin guard to r.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/graph/refresh", h.TriggerRefresh)
}

// GetSellerGraph returns popularity and clustering for one seller.
// GET /v1/graph/:seller_id
func (h *Handler) GetSellerGraph(c *gin.Context) {
	id := c.Param("seller_id")
	if err := validation.ValidateSellerID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_seller_id",
			"message": err.Error(),
		})
		return
	}

	snap, err := h.store.Current()
	if err != nil {
		// No graph yet: same answer as an unknown node.
		c.JSON(http.StatusOK, emptyGraph.SellerProfile(id))
		return
	}
	c.JSON(http.StatusOK, snap.Graph.SellerProfile(id))
}

// DetectCollusion returns the suspicious communities of the active graph.
// GET /v1/detect-collusion
func (h *Handler) DetectCollusion(c *gin.Context) {
	res, err := h.store.Rings(c.Request.Context())
	if errors.Is(err, ErrNoSnapshot) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "graph_not_ready",
			"message": "The interaction graph has not been built yet",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "ring_detection_unavailable",
			"message": "Ring detection did not complete",
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetStats returns the size and age of the active graph.
// GET /v1/graph/stats
func (h *Handler) GetStats(c *gin.Context) {
	snap, err := h.store.Current()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "graph_not_ready",
			"message": "The interaction graph has not been built yet",
		})
		return
	}
	stats := StatsView(snap)
	resp := gin.H{"graph": stats}
	if r, ok := h.store.CachedRings(); ok {
		resp["rings"] = len(r.Rings)
	}
	c.JSON(http.StatusOK, resp)
}

// TriggerRefresh schedules a rebuild.
// POST /v1/graph/refresh
func (h *Handler) TriggerRefresh(c *gin.Context) {
	if h.refresher == nil || !h.refresher.Running() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "refresher_not_running",
			"message": "Graph refresher is not running",
		})
		return
	}
	queued := h.refresher.Trigger()
	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}
