package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	v1 := r.Group("/v1")
	h.RegisterRoutes(v1)
	h.RegisterAdminRoutes(v1)
	return r
}

func doRequest(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_SellerGraphBeforeFirstBuild(t *testing.T) {
	r := setupRouter(NewHandler(NewStore(DefaultOptions()), nil))

	w := doRequest(r, http.MethodGet, "/v1/graph/seller_9")
	require.Equal(t, http.StatusOK, w.Code)

	var p Profile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, Profile{SellerID: "seller_9", FraudRisk: "Low"}, p)
}

func TestHandler_SellerGraph(t *testing.T) {
	store := NewStore(DefaultOptions())
	g, stats := Build(append(triangle("b1", "s1", "b2"), rec("b3", "s1")))
	store.Swap(g, stats)
	r := setupRouter(NewHandler(store, nil))

	w := doRequest(r, http.MethodGet, "/v1/graph/s1")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "s1", body["seller_id"])
	assert.Equal(t, float64(2), body["centrality"]) // b1 and b3
	// Neighbours b1, b2, b3: only b1-b2 adjacent.
	assert.InDelta(t, 1.0/3.0, body["clustering_coefficient"], 1e-9)
	assert.Equal(t, "Low", body["fraud_risk"])
	assert.NotContains(t, body, "Known")
}

func TestHandler_SellerGraphInvalidID(t *testing.T) {
	r := setupRouter(NewHandler(NewStore(DefaultOptions()), nil))
	w := doRequest(r, http.MethodGet, "/v1/graph/bad%20id")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_seller_id")
}

func TestHandler_DetectCollusion(t *testing.T) {
	store := NewStore(DefaultOptions())
	r := setupRouter(NewHandler(store, nil))

	w := doRequest(r, http.MethodGet, "/v1/detect-collusion")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "graph_not_ready")

	store.Swap(twoTriangles(), BuildStats{})
	w = doRequest(r, http.MethodGet, "/v1/detect-collusion")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Generation  uint64     `json:"generation"`
		Communities [][]string `json:"suspicious_communities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, uint64(1), body.Generation)
	assert.Equal(t, [][]string{{"a1", "a2", "a3"}, {"b1", "b2", "b3"}}, body.Communities)
}

func TestHandler_DetectCollusionNoRingsIsEmptyList(t *testing.T) {
	store := NewStore(DefaultOptions())
	g, stats := Build(nil)
	store.Swap(g, stats)
	r := setupRouter(NewHandler(store, nil))

	w := doRequest(r, http.MethodGet, "/v1/detect-collusion")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"suspicious_communities":[]`)
}

func TestHandler_Stats(t *testing.T) {
	store := NewStore(DefaultOptions())
	r := setupRouter(NewHandler(store, nil))

	w := doRequest(r, http.MethodGet, "/v1/graph/stats")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	g, stats := Build(triangle("a", "b", "c"))
	store.Swap(g, stats)
	_, err := store.Rings(context.Background())
	require.NoError(t, err)

	w = doRequest(r, http.MethodGet, "/v1/graph/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Graph Stats `json:"graph"`
		Rings int   `json:"rings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Graph.Nodes)
	assert.Equal(t, 3, body.Graph.Edges)
	assert.Equal(t, 1, body.Rings)
}

func TestHandler_TriggerRefresh(t *testing.T) {
	store := NewStore(DefaultOptions())

	w := doRequest(setupRouter(NewHandler(store, nil)), http.MethodPost, "/v1/graph/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	ref := NewRefresher(staticSource(triangle("a", "b", "c")), store, time.Hour, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ref.Start(ctx)
	defer ref.Stop()
	require.Eventually(t, func() bool { return ref.Refreshes() == 1 }, time.Second, 5*time.Millisecond)

	w = doRequest(setupRouter(NewHandler(store, ref)), http.MethodPost, "/v1/graph/refresh")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"queued":true`)
	require.Eventually(t, func() bool { return ref.Refreshes() == 2 }, time.Second, 5*time.Millisecond)
}
