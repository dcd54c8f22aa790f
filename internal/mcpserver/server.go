package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// NewMCPServer creates an MCP server with the trust tools registered.
// refresh_graph is only offered when an admin secret is configured.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("trustra", Version)
	client := NewClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolGetTrustScore, h.HandleGetTrustScore)
	s.AddTool(ToolGetSellerGraph, h.HandleGetSellerGraph)
	s.AddTool(ToolDetectFraudRings, h.HandleDetectFraudRings)
	s.AddTool(ToolListSellers, h.HandleListSellers)
	s.AddTool(ToolGetGraphStats, h.HandleGetGraphStats)
	if client.CanAdmin() {
		s.AddTool(ToolRefreshGraph, h.HandleRefreshGraph)
	}

	return s
}
