package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/skillmarket/internal/indexer"
	"github.com/dshills/skillmarket/internal/searcher"
	"github.com/dshills/skillmarket/internal/storage"
	"github.com/dshills/skillmarket/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "skillmarket"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// ChatService answers one chat turn
type ChatService interface {
	Reply(ctx context.Context, callerID string, req types.ChatRequest) (*types.ChatReply, error)
}

// Reindexer re-embeds listings and reports progress
type Reindexer interface {
	ReindexAll(ctx context.Context, force bool) (*indexer.Statistics, error)
	Stats() indexer.Counters
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	searcher *searcher.Searcher
	chat     ChatService
	indexer  Reindexer
}

// NewServer creates a new MCP server instance. The caller owns store and
// closes it after Serve returns.
func NewServer(store storage.Storage, srch *searcher.Searcher, chat ChatService, idx Reindexer) (*Server, error) {
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:      mcpServer,
		storage:  store,
		searcher: srch,
		chat:     chat,
		indexer:  idx,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve runs the MCP server on stdio and blocks until the client disconnects
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ServeStdio(s.mcp)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(searchListingsTool(), s.handleSearchListings)
	s.mcp.AddTool(chatTool(), s.handleChat)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(reindexListingsTool(), s.handleReindexListings)

	return nil
}
