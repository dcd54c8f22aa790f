package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mbd888/trustra/internal/graph"
	"github.com/mbd888/trustra/internal/marketplace"
	"github.com/mbd888/trustra/internal/trust"
)

// Config holds the settings for reaching the trust API.
type Config struct {
	APIURL      string // Base URL, e.g. "http://localhost:8080"
	AdminSecret string // Optional; enables refresh_graph
	Timeout     time.Duration
}

// Client is an HTTP client for the trust API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a client. A zero timeout uses 30s.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Code)
}

// SellerPage is one page of GET /v1/sellers.
type SellerPage struct {
	Sellers    []marketplace.Seller `json:"sellers"`
	Count      int                  `json:"count"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
}

// GraphStats is GET /v1/graph/stats.
type GraphStats struct {
	Graph graph.Stats `json:"graph"`
	Rings *int        `json:"rings,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.cfg.APIURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.AdminSecret != "" {
		req.Header.Set("X-Admin-Secret", c.cfg.AdminSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || (apiErr.Code == "" && apiErr.Message == "") {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ComputeTrust scores one seller.
func (c *Client) ComputeTrust(ctx context.Context, sellerID string) (*trust.Result, error) {
	var res trust.Result
	err := c.do(ctx, http.MethodPost, "/v1/compute-trust", nil, map[string]string{"seller_id": sellerID}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SellerGraph returns the graph profile of one seller.
func (c *Client) SellerGraph(ctx context.Context, sellerID string) (*graph.Profile, error) {
	var p graph.Profile
	if err := c.do(ctx, http.MethodGet, "/v1/graph/"+url.PathEscape(sellerID), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DetectCollusion returns the suspicious communities of the current graph.
func (c *Client) DetectCollusion(ctx context.Context) (*graph.RingResult, error) {
	var r graph.RingResult
	if err := c.do(ctx, http.MethodGet, "/v1/detect-collusion", nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListSellers returns a page of sellers.
func (c *Client) ListSellers(ctx context.Context, limit int, cursor string) (*SellerPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var page SellerPage
	if err := c.do(ctx, http.MethodGet, "/v1/sellers", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GraphStats returns the size and age of the active graph.
func (c *Client) GraphStats(ctx context.Context) (*GraphStats, error) {
	var s GraphStats
	if err := c.do(ctx, http.MethodGet, "/v1/graph/stats", nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RefreshGraph asks the service to rebuild the graph. It needs the admin
// secret.
func (c *Client) RefreshGraph(ctx context.Context) (bool, error) {
	var out struct {
		Queued bool `json:"queued"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/graph/refresh", nil, nil, &out); err != nil {
		return false, err
	}
	return out.Queued, nil
}

// CanAdmin reports whether an admin secret is configured.
func (c *Client) CanAdmin() bool {
	return c.cfg.AdminSecret != ""
}
