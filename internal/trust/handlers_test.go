package trust

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/trustra/internal/marketplace"
)

func setupRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/v1"))
	return r
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestComputeTrustEndpoint(t *testing.T) {
	store := marketplace.NewMemoryStore()
	honestSeller(store, "seller_1", 600)
	r := setupRouter(newTestService(store))

	w := doJSON(r, http.MethodPost, "/v1/compute-trust", `{"seller_id":"seller_1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		SellerID   string  `json:"seller_id"`
		TrustScore float64 `json:"trust_score"`
		RiskLevel  string  `json:"risk_level"`
		Components struct {
			Behavioral           float64 `json:"behavioral"`
			Authenticity         float64 `json:"authenticity"`
			TemporalDecayApplied float64 `json:"temporal_decay_applied"`
		} `json:"components"`
		VolatilityIndex float64 `json:"volatility_index"`
		Trend           string  `json:"trend"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "seller_1", body.SellerID)
	assert.Equal(t, 676.98, body.TrustScore)
	assert.Equal(t, "Medium", body.RiskLevel)
	assert.Equal(t, 761.0, body.Components.Behavioral)
	assert.Equal(t, 1000.0, body.Components.Authenticity)
	assert.Equal(t, 0.0, body.Components.TemporalDecayApplied)
	assert.Equal(t, "stable", body.Trend)
}

func TestComputeTrustEndpoint_BadRequests(t *testing.T) {
	r := setupRouter(newTestService(marketplace.NewMemoryStore()))

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `seller_1`, "invalid_request"},
		{"missing id", `{}`, "invalid_seller_id"},
		{"bad characters", `{"seller_id":"drop table;"}`, "invalid_seller_id"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/v1/compute-trust", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tc.code)
		})
	}
}

func TestGetTrustEndpoint(t *testing.T) {
	r := setupRouter(newTestService(marketplace.NewMemoryStore()))

	w := doJSON(r, http.MethodGet, "/v1/trust/unknown_seller", "")
	require.Equal(t, http.StatusOK, w.Code)

	var res Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, DefaultBaseline, res.Baseline)
	assert.Equal(t, RiskHigh, res.RiskLevel)
}

func TestGetTrustEndpoint_SourceUnavailable(t *testing.T) {
	src := &brokenSource{
		MemoryStore: marketplace.NewMemoryStore(),
		err:         fmt.Errorf("seller_reviews: %w", marketplace.ErrSourceUnavailable),
	}
	r := setupRouter(newTestService(src))

	w := doJSON(r, http.MethodGet, "/v1/trust/seller_1", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "source_unavailable")

	src.err = fmt.Errorf("scan row: bad column")
	w = doJSON(r, http.MethodGet, "/v1/trust/seller_1", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestBatchEndpoint(t *testing.T) {
	store := marketplace.NewMemoryStore()
	honestSeller(store, "a", 900)
	r := setupRouter(newTestService(store))

	w := doJSON(r, http.MethodPost, "/v1/trust/batch", `{"seller_ids":["a","b"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "a", resp.Results[0].SellerID)
	assert.Equal(t, RiskLow, resp.Results[0].RiskLevel)
	assert.False(t, resp.Results[1].KnownSeller)
}

func TestBatchEndpoint_Limits(t *testing.T) {
	r := setupRouter(newTestService(marketplace.NewMemoryStore()))

	w := doJSON(r, http.MethodPost, "/v1/trust/batch", `{"seller_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_failed")

	ids := make([]string, MaxBatchSize+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("s%d", i)
	}
	payload, _ := json.Marshal(BatchRequest{SellerIDs: ids})
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/trust/batch", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "too_many_sellers")

	w = doJSON(r, http.MethodPost, "/v1/trust/batch", `{"seller_ids":["ok","not ok"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
