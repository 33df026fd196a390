package types

import (
	"fmt"
	"strings"
	"time"
)

// ListingType classifies what a listing offers or requests
type ListingType string

const (
	ListingProviding ListingType = "Providing Skills"
	ListingLooking   ListingType = "Looking for Skills"
	ListingTrading   ListingType = "Trading Skills"

	// AllListingTypes is the filter sentinel that disables type filtering
	AllListingTypes = "All Types"
)

// ListingTypes lists every valid listing type in display order
var ListingTypes = []ListingType{ListingProviding, ListingLooking, ListingTrading}

// Categories is the fixed listing category vocabulary
var Categories = []string{
	"Photography",
	"Programming",
	"Design",
	"Music",
	"Writing",
	"Language",
	"Fitness",
	"Cooking",
	"Business",
	"Technology",
	"Education",
	"Lifestyle",
	"Other",
}

// Valid reports whether t is one of the known listing types
func (t ListingType) Valid() bool {
	for _, known := range ListingTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Listing represents a marketplace offer or request
type Listing struct {
	ID          string
	Title       string
	Description string
	Category    string
	ListingType ListingType
	Price       *float64 // Nullable
	UserID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the mutable content fields of a listing
func (l *Listing) Validate() error {
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidListing)
	}
	if l.UserID == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidListing)
	}
	if !l.ListingType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidListingType, l.ListingType)
	}
	if l.Price != nil && *l.Price < 0 {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidListing)
	}
	return nil
}

// EmbeddingText returns the text used to compute a listing's semantic vector
func (l *Listing) EmbeddingText() string {
	var b strings.Builder
	b.WriteString(l.Title)
	if l.Category != "" {
		b.WriteString("\nCategory: ")
		b.WriteString(l.Category)
	}
	if l.ListingType != "" {
		b.WriteString("\nType: ")
		b.WriteString(string(l.ListingType))
	}
	if l.Description != "" {
		b.WriteString("\n")
		b.WriteString(l.Description)
	}
	return b.String()
}

// Profile holds the public identity of a marketplace user
type Profile struct {
	ID        string
	Username  string
	CreatedAt time.Time
}
