package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/skillmarket/pkg/types"
)

func listingTypeEnum() []string {
	out := make([]string, 0, len(types.ListingTypes)+1)
	out = append(out, types.AllListingTypes)
	for _, t := range types.ListingTypes {
		out = append(out, string(t))
	}
	return out
}

// searchListingsTool returns the tool definition for search_listings
func searchListingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_listings",
		Description: "Search marketplace listings by title, description or owner username",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search terms; terms of one character are ignored",
				},
				"listing_type": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to one listing type",
					"enum":        listingTypeEnum(),
					"default":     types.AllListingTypes,
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to one category",
					"enum":        types.Categories,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// chatTool returns the tool definition for chat
func chatTool() mcp.Tool {
	return mcp.Tool{
		Name:        "chat",
		Description: "Ask the marketplace assistant a question, with listings retrieved as context",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "The user's message",
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Existing session id, or a temp- placeholder to start a new session",
				},
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "Caller id; must own session_id when continuing a session",
				},
				"history": map[string]interface{}{
					"type":        "array",
					"description": "Prior turns, oldest first",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"text": map[string]interface{}{"type": "string"},
							"sender": map[string]interface{}{
								"type": "string",
								"enum": []string{string(types.SenderUser), string(types.SenderBot)},
							},
						},
					},
				},
			},
			Required: []string{"message", "user_id"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report store statistics and embedding progress",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// reindexListingsTool returns the tool definition for reindex_listings
func reindexListingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reindex_listings",
		Description: "Compute embeddings for listings whose content changed",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-embed every listing ignoring content hashes",
					"default":     false,
				},
			},
		},
	}
}
