package httpapi

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dshills/skillmarket/internal/indexer"
	"github.com/dshills/skillmarket/pkg/types"
)

type listingJSON struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	ListingType string    `json:"listingType"`
	Price       *float64  `json:"price"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toListingJSON(l *types.Listing) listingJSON {
	return listingJSON{
		ID:          l.ID,
		Title:       l.Title,
		Description: l.Description,
		Category:    l.Category,
		ListingType: string(l.ListingType),
		Price:       l.Price,
		UserID:      l.UserID,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func toListingsJSON(listings []*types.Listing) []listingJSON {
	out := make([]listingJSON, len(listings))
	for i, l := range listings {
		out[i] = toListingJSON(l)
	}
	return out
}

// listingInput is the writable part of a listing
type listingInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	ListingType string   `json:"listingType"`
	Price       *float64 `json:"price"`
}

func (in listingInput) apply(l *types.Listing) {
	l.Title = in.Title
	l.Description = in.Description
	l.Category = in.Category
	l.ListingType = types.ListingType(in.ListingType)
	l.Price = in.Price
}

type sessionJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type messageJSON struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type reindexJSON struct {
	Indexed    int      `json:"indexed"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	DurationMS int64    `json:"durationMs"`
	Errors     []string `json:"errors"`
}

func toReindexJSON(stats *indexer.Statistics) reindexJSON {
	return reindexJSON{
		Indexed:    stats.ListingsIndexed,
		Skipped:    stats.ListingsSkipped,
		Failed:     stats.ListingsFailed,
		DurationMS: stats.Duration.Milliseconds(),
		Errors:     stats.ErrorMessages,
	}
}

func errorJSON(c echo.Context, code int, message string) error {
	return c.JSON(code, map[string]string{"error": message})
}
