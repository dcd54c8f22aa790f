package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions. Descriptions are what the model reads to pick a tool.

var ToolGetTrustScore = mcp.NewTool("get_trust_score",
	mcp.WithDescription(
		"Compute the trust score (0-1000) of a marketplace seller. "+
			"Returns the risk level (Low/Medium/High), behavioral and review authenticity components, "+
			"volatility, trend and whether a review burst was detected."),
	mcp.WithString("seller_id",
		mcp.Required(),
		mcp.Description("The seller id (e.g. 'seller_042')")),
)

var ToolGetSellerGraph = mcp.NewTool("get_seller_graph",
	mcp.WithDescription(
		"Show where a seller sits in the buyer-seller interaction graph: "+
			"how many distinct buyers it has and how tightly those buyers are linked to each other. "+
			"A clustering coefficient above 0.5 is labelled High fraud risk."),
	mcp.WithString("seller_id",
		mcp.Required(),
		mcp.Description("The seller id (e.g. 'seller_042')")),
)

var ToolDetectFraudRings = mcp.NewTool("detect_fraud_rings",
	mcp.WithDescription(
		"List suspected collusion rings: tightly knit groups of 3 to 10 buyers and sellers "+
			"found by community detection on the interaction graph. At most 5 rings are returned."),
)

var ToolListSellers = mcp.NewTool("list_sellers",
	mcp.WithDescription(
		"Browse marketplace sellers with their baseline trust scores. "+
			"Use the returned cursor to fetch the next page."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of sellers to return (default 20)")),
	mcp.WithString("cursor",
		mcp.Description("Cursor from a previous list_sellers call")),
)

var ToolGetGraphStats = mcp.NewTool("get_graph_stats",
	mcp.WithDescription(
		"Get the size and age of the interaction graph currently used for fraud detection."),
)

var ToolRefreshGraph = mcp.NewTool("refresh_graph",
	mcp.WithDescription(
		"Ask the service to rebuild the interaction graph from the datastore now. "+
			"Requires the admin secret to be configured for this tool server."),
)
