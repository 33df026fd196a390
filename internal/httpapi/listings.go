package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/dshills/skillmarket/internal/indexer"
	"github.com/dshills/skillmarket/internal/searcher"
	"github.com/dshills/skillmarket/internal/storage"
	"github.com/dshills/skillmarket/pkg/types"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// Search runs a multi-term listing search.
// GET /api/search?q=...&type=...&category=...&limit=...&offset=...
func (h *Handler) Search(c echo.Context) error {
	limit := defaultSearchLimit
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = min(val, maxSearchLimit)
		}
	}
	offset := 0
	if o := c.QueryParam("offset"); o != "" {
		if val, err := strconv.Atoi(o); err == nil && val > 0 {
			offset = val
		}
	}

	query := c.QueryParam("q")
	_, terms := searcher.Normalize(query)

	results, err := h.searcher.Search(c.Request().Context(), searcher.SearchRequest{
		Query:       query,
		ListingType: c.QueryParam("type"),
		Category:    c.QueryParam("category"),
	})
	if err != nil {
		log.Printf("ERROR: search failed: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "search failed")
	}

	total := len(results)
	page := results[min(offset, total):min(offset+limit, total)]

	return c.JSON(http.StatusOK, map[string]interface{}{
		"listings": toListingsJSON(page),
		"total":    total,
		"terms":    terms,
	})
}

// GetListing returns one listing.
// GET /api/listings/:id
func (h *Handler) GetListing(c echo.Context) error {
	listing, err := h.storage.GetListing(c.Request().Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "listing not found")
	}
	if err != nil {
		log.Printf("ERROR: failed to load listing: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to load listing")
	}
	return c.JSON(http.StatusOK, toListingJSON(listing))
}

// CreateListing stores a listing owned by the caller and queues its embedding.
// POST /api/listings
func (h *Handler) CreateListing(c echo.Context) error {
	caller, _ := CallerFrom(c)
	ctx := c.Request().Context()

	var in listingInput
	if err := c.Bind(&in); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	listing := &types.Listing{UserID: caller.ID}
	in.apply(listing)
	if err := listing.Validate(); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	// Keep the owner's username searchable
	if caller.Username != "" {
		if err := h.storage.UpsertProfile(ctx, &types.Profile{ID: caller.ID, Username: caller.Username}); err != nil {
			log.Printf("WARN: failed to record profile for %s: %v", caller.ID, err)
		}
	}

	if err := h.storage.CreateListing(ctx, listing); err != nil {
		log.Printf("ERROR: failed to create listing: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to create listing")
	}
	h.enqueue(listing.ID)

	return c.JSON(http.StatusCreated, toListingJSON(listing))
}

// UpdateListing replaces the content of a listing owned by the caller.
// PUT /api/listings/:id
func (h *Handler) UpdateListing(c echo.Context) error {
	caller, _ := CallerFrom(c)
	ctx := c.Request().Context()

	listing, status, msg := h.ownedListing(c, caller)
	if listing == nil {
		return errorJSON(c, status, msg)
	}

	var in listingInput
	if err := c.Bind(&in); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	in.apply(listing)
	if err := listing.Validate(); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	if err := h.storage.UpdateListing(ctx, listing); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errorJSON(c, http.StatusNotFound, "listing not found")
		}
		log.Printf("ERROR: failed to update listing: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to update listing")
	}
	h.enqueue(listing.ID)

	return c.JSON(http.StatusOK, toListingJSON(listing))
}

// DeleteListing removes a listing owned by the caller. Its embedding goes
// with it.
// DELETE /api/listings/:id
func (h *Handler) DeleteListing(c echo.Context) error {
	caller, _ := CallerFrom(c)

	listing, status, msg := h.ownedListing(c, caller)
	if listing == nil {
		return errorJSON(c, status, msg)
	}

	if err := h.storage.DeleteListing(c.Request().Context(), listing.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Printf("ERROR: failed to delete listing: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "failed to delete listing")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "listing deleted"})
}

// ownedListing loads the :id listing and checks the caller owns it. On
// failure it returns nil with the status and message to respond with.
func (h *Handler) ownedListing(c echo.Context, caller Caller) (*types.Listing, int, string) {
	listing, err := h.storage.GetListing(c.Request().Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, http.StatusNotFound, "listing not found"
	}
	if err != nil {
		log.Printf("ERROR: failed to load listing: %v", err)
		return nil, http.StatusInternalServerError, "failed to load listing"
	}
	if listing.UserID != caller.ID {
		return nil, http.StatusForbidden, types.ErrForbidden.Error()
	}
	return listing, 0, ""
}

// Reindex embeds every changed listing, or all of them with force=true.
// POST /api/admin/reindex
func (h *Handler) Reindex(c echo.Context) error {
	force, _ := strconv.ParseBool(c.QueryParam("force"))

	stats, err := h.indexer.ReindexAll(c.Request().Context(), force)
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return errorJSON(c, http.StatusConflict, err.Error())
	}
	if err != nil {
		log.Printf("ERROR: reindex failed: %v", err)
		return errorJSON(c, http.StatusInternalServerError, "reindex failed")
	}
	return c.JSON(http.StatusOK, toReindexJSON(stats))
}
