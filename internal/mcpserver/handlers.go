package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/trustra/internal/graph"
	"github.com/mbd888/trustra/internal/trust"
	"github.com/mbd888/trustra/internal/validation"
)

const defaultListLimit = 20

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

func sellerArg(req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	id := strings.TrimSpace(req.GetString("seller_id", ""))
	if id == "" {
		return "", mcp.NewToolResultError("seller_id is required")
	}
	if err := validation.ValidateSellerID(id); err != nil {
		return "", mcp.NewToolResultError(fmt.Sprintf("Invalid seller_id: %v", err))
	}
	return id, nil
}

// HandleGetTrustScore computes one seller's trust score.
func (h *Handlers) HandleGetTrustScore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := sellerArg(req)
	if bad != nil {
		return bad, nil
	}

	res, err := h.client.ComputeTrust(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to compute trust score: %v", err)), nil
	}
	return mcp.NewToolResultText(formatTrust(res)), nil
}

// HandleGetSellerGraph returns a seller's graph profile.
func (h *Handlers) HandleGetSellerGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := sellerArg(req)
	if bad != nil {
		return bad, nil
	}

	p, err := h.client.SellerGraph(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get seller graph: %v", err)), nil
	}
	return mcp.NewToolResultText(formatProfile(p)), nil
}

// HandleDetectFraudRings lists suspected collusion rings.
func (h *Handlers) HandleDetectFraudRings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rings, err := h.client.DetectCollusion(ctx)
	if err != nil {
		if isNotReady(err) {
			return mcp.NewToolResultText("The interaction graph has not been built yet. Try again shortly."), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to detect fraud rings: %v", err)), nil
	}
	return mcp.NewToolResultText(formatRings(rings)), nil
}

// HandleListSellers returns a page of sellers.
func (h *Handlers) HandleListSellers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultListLimit)
	if limit <= 0 {
		limit = defaultListLimit
	}
	cursor := req.GetString("cursor", "")

	page, err := h.client.ListSellers(ctx, limit, cursor)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list sellers: %v", err)), nil
	}
	return mcp.NewToolResultText(formatSellers(page)), nil
}

// HandleGetGraphStats reports the active graph's size and age.
func (h *Handlers) HandleGetGraphStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.client.GraphStats(ctx)
	if err != nil {
		if isNotReady(err) {
			return mcp.NewToolResultText("The interaction graph has not been built yet."), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get graph stats: %v", err)), nil
	}

	g := stats.Graph
	var sb strings.Builder
	sb.WriteString("Interaction Graph:\n")
	fmt.Fprintf(&sb, "  Generation: %d\n", g.Generation)
	fmt.Fprintf(&sb, "  Nodes: %d | Edges: %d\n", g.Nodes, g.Edges)
	fmt.Fprintf(&sb, "  Records: %d (skipped %d)\n", g.Records, g.Skipped)
	fmt.Fprintf(&sb, "  Built: %s\n", g.BuiltAt.Format("2006-01-02 15:04:05 MST"))
	if stats.Rings != nil {
		fmt.Fprintf(&sb, "  Suspected rings: %d\n", *stats.Rings)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleRefreshGraph queues a graph rebuild.
func (h *Handlers) HandleRefreshGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	queued, err := h.client.RefreshGraph(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Refresh failed: %v", err)), nil
	}
	if !queued {
		return mcp.NewToolResultText("A graph rebuild is already pending."), nil
	}
	return mcp.NewToolResultText("Graph rebuild queued."), nil
}

func isNotReady(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "graph_not_ready"
}

// --- Formatting helpers ---

func formatTrust(r *trust.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Seller %s\n", r.SellerID)
	fmt.Fprintf(&sb, "  Trust Score: %.2f / 1000 (%s risk)\n", r.TrustScore, r.RiskLevel)
	fmt.Fprintf(&sb, "  Behavioral: %.2f | Authenticity: %.2f\n", r.Components.Behavioral, r.Components.Authenticity)
	if r.Components.TemporalDecayApplied != 0 {
		fmt.Fprintf(&sb, "  Decay applied to baseline: %.2f\n", r.Components.TemporalDecayApplied)
	}
	fmt.Fprintf(&sb, "  Volatility: %.2f | Trend: %s\n", r.VolatilityIndex, r.Trend)
	if r.BurstDetected {
		sb.WriteString("  Warning: review burst detected\n")
	}
	if r.SpamScore > 0 {
		fmt.Fprintf(&sb, "  Duplicate review text: %.0f%%\n", r.SpamScore*100)
	}
	if !r.KnownSeller {
		sb.WriteString("  Note: seller not found, default baseline used\n")
	}
	return sb.String()
}

func formatProfile(p *graph.Profile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Seller %s in the interaction graph:\n", p.SellerID)
	fmt.Fprintf(&sb, "  Distinct buyers: %d\n", p.Centrality)
	fmt.Fprintf(&sb, "  Clustering coefficient: %.3f\n", p.ClusteringCoefficient)
	fmt.Fprintf(&sb, "  Fraud risk: %s\n", p.FraudRisk)
	return sb.String()
}

func formatRings(r *graph.RingResult) string {
	if len(r.Rings) == 0 {
		return fmt.Sprintf("No suspected fraud rings in graph generation %d.", r.Generation)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d suspected ring(s) in graph generation %d:\n\n", len(r.Rings), r.Generation)
	for i, ring := range r.Rings {
		fmt.Fprintf(&sb, "%d. %d members: %s\n", i+1, len(ring), strings.Join(ring, ", "))
	}
	return sb.String()
}

func formatSellers(page *SellerPage) string {
	if len(page.Sellers) == 0 {
		return "No sellers found."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d seller(s):\n\n", len(page.Sellers))
	for i, s := range page.Sellers {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, s.Name, s.ID)
		fmt.Fprintf(&sb, "   Baseline trust: %.1f\n", s.BaselineTrustScore)
	}
	if page.HasMore {
		fmt.Fprintf(&sb, "\nMore sellers available. Next cursor: %s", page.NextCursor)
	}
	return sb.String()
}
