package types

import "errors"

// Domain errors shared by the service packages
var (
	// Persistence errors
	ErrNotFound = errors.New("not found")

	// Caller errors
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("not permitted")

	// Validation errors
	ErrEmptyMessage       = errors.New("message cannot be empty")
	ErrInvalidHistory     = errors.New("invalid session history")
	ErrInvalidListing     = errors.New("invalid listing")
	ErrInvalidListingType = errors.New("invalid listing type")
)
