package marketplace

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(src Source) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(src).RegisterRoutes(r.Group("/v1"))
	return r
}

type listResponse struct {
	Sellers    []Seller `json:"sellers"`
	Count      int      `json:"count"`
	NextCursor string   `json:"next_cursor"`
	HasMore    bool     `json:"has_more"`
}

func TestListSellers_Paginates(t *testing.T) {
	r := newTestRouter(seededStore())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/sellers?limit=3", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var first listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, 3, first.Count)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextCursor)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/sellers?limit=3&cursor="+first.NextCursor, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var second listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, 1, second.Count)
	assert.False(t, second.HasMore)
	assert.Equal(t, "s4", second.Sellers[0].ID)
}

func TestListSellers_EmptyStore(t *testing.T) {
	r := newTestRouter(NewMemoryStore())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/sellers", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sellers":[]`)
}

func TestListSellers_BadCursor(t *testing.T) {
	r := newTestRouter(seededStore())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/sellers?cursor=%21%21", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_cursor")
}

func TestGetSeller(t *testing.T) {
	r := newTestRouter(seededStore())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/sellers/s2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"baseline_trust_score":600`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/sellers/ghost", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
