// Package httpapi serves the marketplace search, listing and chat endpoints
// over echo.
package httpapi

import (
	"context"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dshills/skillmarket/internal/indexer"
	"github.com/dshills/skillmarket/internal/searcher"
	"github.com/dshills/skillmarket/internal/storage"
	"github.com/dshills/skillmarket/pkg/types"
)

// ChatService answers one chat turn
type ChatService interface {
	Reply(ctx context.Context, callerID string, req types.ChatRequest) (*types.ChatReply, error)
}

// IndexQueue schedules listing embedding work
type IndexQueue interface {
	Enqueue(task indexer.Task) error
	ReindexAll(ctx context.Context, force bool) (*indexer.Statistics, error)
	Stats() indexer.Counters
}

// Handler handles HTTP requests.
type Handler struct {
	storage  storage.Storage
	searcher *searcher.Searcher
	chat     ChatService
	indexer  IndexQueue
	version  string
}

// NewHandler creates a new handler.
func NewHandler(store storage.Storage, srch *searcher.Searcher, chat ChatService, idx IndexQueue, version string) *Handler {
	return &Handler{
		storage:  store,
		searcher: srch,
		chat:     chat,
		indexer:  idx,
		version:  version,
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo, auth AuthConfig) {
	api := e.Group("/api", Authenticate(auth.Secret))

	// Chat
	api.POST("/chat", h.Chat)
	api.GET("/chat/sessions", h.ListSessions, RequireCaller)
	api.GET("/chat/sessions/:id/messages", h.ListSessionMessages, RequireCaller)

	// Search and listings
	api.GET("/search", h.Search)
	api.GET("/listings/:id", h.GetListing)
	api.POST("/listings", h.CreateListing, RequireCaller)
	api.PUT("/listings/:id", h.UpdateListing, RequireCaller)
	api.DELETE("/listings/:id", h.DeleteListing, RequireCaller)

	// Admin
	api.POST("/admin/reindex", h.Reindex, RequireCaller, RequireAdmin(auth.AdminIDs))

	e.GET("/health", h.Health)
}

// Health returns health status with store statistics.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	status, err := h.storage.GetStatus(c.Request().Context())
	if err != nil {
		log.Printf("ERROR: health check failed: %v", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "database unavailable",
		})
	}

	counters := h.indexer.Stats()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": h.version,
		"store": map[string]interface{}{
			"backend":          status.Backend,
			"build_mode":       status.BuildMode,
			"schema_version":   status.SchemaVersion,
			"listings":         status.ListingsCount,
			"profiles":         status.ProfilesCount,
			"embeddings":       status.EmbeddingsCount,
			"sessions":         status.SessionsCount,
			"messages":         status.MessagesCount,
			"size_mb":          status.SizeMB,
			"vector_extension": status.Health.VectorExtension,
		},
		"indexer": map[string]interface{}{
			"indexed": counters.Indexed,
			"skipped": counters.Skipped,
			"failed":  counters.Failed,
			"pending": counters.Pending,
		},
	})
}

// enqueue schedules an embedding refresh. The listing write has already
// succeeded, so a rejected task is only logged.
func (h *Handler) enqueue(listingID string) {
	if err := h.indexer.Enqueue(indexer.Task{ListingID: listingID}); err != nil {
		log.Printf("WARN: listing %s not queued for indexing: %v", listingID, err)
	}
}
