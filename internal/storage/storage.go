package storage

import (
	"context"
	"time"

	"github.com/dshills/skillmarket/pkg/types"
)

// Storage defines the interface for persisting and querying marketplace data
type Storage interface {
	// Listing operations
	CreateListing(ctx context.Context, listing *types.Listing) error
	UpdateListing(ctx context.Context, listing *types.Listing) error
	DeleteListing(ctx context.Context, listingID string) error
	GetListing(ctx context.Context, listingID string) (*types.Listing, error)
	GetListingsByIDs(ctx context.Context, listingIDs []string) ([]*types.Listing, error)
	SearchListings(ctx context.Context, filter ListingFilter) ([]*types.Listing, error)
	ListListings(ctx context.Context, limit, offset int) ([]*types.Listing, error)

	// Profile operations
	UpsertProfile(ctx context.Context, profile *types.Profile) error
	GetProfile(ctx context.Context, profileID string) (*types.Profile, error)
	FindProfilesByUsername(ctx context.Context, fragment string) ([]*types.Profile, error)

	// Embedding operations
	UpsertListingEmbedding(ctx context.Context, embedding *ListingEmbedding) error
	GetListingEmbedding(ctx context.Context, listingID string) (*ListingEmbedding, error)

	// Similarity procedures
	MatchListings(ctx context.Context, vector []float32, threshold float64, count int) ([]VectorResult, error)
	SimilarListings(ctx context.Context, listingID string, threshold float64, count int) ([]VectorResult, error)

	// Chat operations
	CreateChatSession(ctx context.Context, session *types.ChatSession) error
	GetChatSession(ctx context.Context, sessionID string) (*types.ChatSession, error)
	ListChatSessions(ctx context.Context, userID string) ([]*types.ChatSession, error)
	AppendChatMessage(ctx context.Context, message *types.ChatMessage) error
	ListChatMessages(ctx context.Context, sessionID string, limit int) ([]*types.ChatMessage, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
}

// ListingFilter narrows a listing query. All set fields must match.
type ListingFilter struct {
	TitleContains       string // Case-insensitive substring
	DescriptionContains string // Case-insensitive substring
	CategoryContains    string // Case-insensitive substring
	ListingType         string // Exact match, empty matches any
	Category            string // Exact match, empty matches any

	// OwnerIDs restricts results to listings owned by any of the ids.
	// A non-nil empty slice matches nothing.
	OwnerIDs []string

	Limit int // 0 means unlimited
}

// ListingEmbedding is the stored semantic vector of a listing
type ListingEmbedding struct {
	ListingID   string
	Vector      []float32
	Dimension   int
	Provider    string
	Model       string
	ContentHash string // SHA-256 hex of the embedded text
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VectorResult represents a result from a similarity procedure
type VectorResult struct {
	ListingID  string
	Similarity float64
}

// Status contains statistics about the store
type Status struct {
	Backend         string
	BuildMode       string // SQLite build flavour, empty on Postgres
	ListingsCount   int
	ProfilesCount   int
	EmbeddingsCount int
	SessionsCount   int
	MessagesCount   int
	SizeMB          float64
	SchemaVersion   string
	Health          HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	VectorExtension     bool
}
