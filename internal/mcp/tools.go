package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/skillmarket/internal/indexer"
	"github.com/dshills/skillmarket/internal/searcher"
	"github.com/dshills/skillmarket/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// handleSearchListings handles the search_listings tool invocation
func (s *Server) handleSearchListings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, _ := args["query"].(string)
	normalized, terms := searcher.Normalize(query)
	if len(terms) == 0 {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and must contain a term of two or more characters", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	listingType := getStringDefault(args, "listing_type", "")
	if listingType != "" && listingType != types.AllListingTypes && !types.ListingType(listingType).Valid() {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid listing_type", map[string]interface{}{
			"param":   "listing_type",
			"value":   listingType,
			"allowed": listingTypeEnum(),
		})
	}

	results, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:       query,
		ListingType: listingType,
		Category:    getStringDefault(args, "category", ""),
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	total := len(results)
	if len(results) > limit {
		results = results[:limit]
	}

	listings := make([]map[string]interface{}, len(results))
	for i, l := range results {
		listings[i] = listingMap(l)
	}

	response := map[string]interface{}{
		"query":   normalized,
		"terms":   terms,
		"total":   total,
		"results": listings,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleChat handles the chat tool invocation
func (s *Server) handleChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	history, err := parseHistory(args["history"])
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid history", map[string]interface{}{
			"param":  "history",
			"reason": err.Error(),
		})
	}

	req := types.ChatRequest{
		Message:        getStringDefault(args, "message", ""),
		SessionID:      getStringDefault(args, "session_id", ""),
		SessionHistory: history,
	}

	reply, err := s.chat.Reply(ctx, getStringDefault(args, "user_id", ""), req)
	switch {
	case errors.Is(err, types.ErrEmptyMessage):
		return nil, newMCPError(ErrorCodeInvalidParams, "message parameter is required", map[string]interface{}{
			"param":  "message",
			"reason": "missing or empty",
		})
	case errors.Is(err, types.ErrUnauthenticated):
		return nil, newMCPError(ErrorCodeInvalidParams, "user_id is required", map[string]interface{}{
			"param":  "user_id",
			"reason": "missing",
		})
	case errors.Is(err, types.ErrForbidden), errors.Is(err, types.ErrNotFound):
		return nil, newMCPError(ErrorCodeInvalidParams, "session not available to this user", map[string]interface{}{
			"param":  "session_id",
			"reason": err.Error(),
		})
	case err != nil:
		log.Printf("ERROR: chat turn for session %q failed: %v", req.SessionID, err)
		return nil, newMCPError(ErrorCodeInternalError, "failed to generate response", nil)
	}

	response := map[string]interface{}{
		"response":   reply.Response,
		"session_id": reply.SessionID,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}
	counters := s.indexer.Stats()

	response := map[string]interface{}{
		"backend":        status.Backend,
		"build_mode":     status.BuildMode,
		"schema_version": status.SchemaVersion,
		"statistics": map[string]interface{}{
			"listings_count":   status.ListingsCount,
			"profiles_count":   status.ProfilesCount,
			"embeddings_count": status.EmbeddingsCount,
			"sessions_count":   status.SessionsCount,
			"messages_count":   status.MessagesCount,
			"size_mb":          fmt.Sprintf("%.2f", status.SizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"vector_extension":     status.Health.VectorExtension,
		},
		"indexer": map[string]interface{}{
			"indexed": counters.Indexed,
			"skipped": counters.Skipped,
			"failed":  counters.Failed,
			"pending": counters.Pending,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleReindexListings handles the reindex_listings tool invocation
func (s *Server) handleReindexListings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	force := getBoolDefault(args, "force", false)

	stats, err := s.indexer.ReindexAll(ctx, force)
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "reindex failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"listings_indexed": stats.ListingsIndexed,
		"listings_skipped": stats.ListingsSkipped,
		"listings_failed":  stats.ListingsFailed,
		"duration_ms":      stats.Duration.Milliseconds(),
	}
	if len(stats.ErrorMessages) > 0 {
		response["errors"] = stats.ErrorMessages
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func listingMap(l *types.Listing) map[string]interface{} {
	m := map[string]interface{}{
		"id":           l.ID,
		"title":        l.Title,
		"description":  l.Description,
		"category":     l.Category,
		"listing_type": string(l.ListingType),
		"user_id":      l.UserID,
		"created_at":   l.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"link":         "/listings/" + l.ID,
	}
	if l.Price != nil {
		m["price"] = *l.Price
	}
	return m
}

// parseHistory converts the untyped history argument into entries
func parseHistory(raw interface{}) ([]types.HistoryEntry, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("must be an array")
	}

	history := make([]types.HistoryEntry, 0, len(items))
	for i, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("entry %d must be an object", i)
		}
		text, _ := entry["text"].(string)
		sender, err := types.ParseSender(getStringDefault(entry, "sender", ""))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		history = append(history, types.HistoryEntry{Text: text, Sender: sender})
	}
	return history, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
