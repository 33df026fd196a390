// Package types provides shared type definitions for the skillmarket services.
//
// This package defines the domain records exchanged between storage, search,
// the chat assistant and the transports: listings, profiles, chat sessions
// and chat messages.
//
// # Listings
//
// A Listing is a marketplace offer or request owned by exactly one user:
//
//	listing := &types.Listing{
//	    Title:       "Guitar Lessons",
//	    Category:    "Music",
//	    ListingType: types.ListingProviding,
//	    UserID:      ownerID,
//	}
//	if err := listing.Validate(); err != nil {
//	    return err
//	}
//
// # Chat Sessions
//
// Clients create sessions locally with a placeholder identifier before the
// first message reaches the server:
//
//	if types.IsPlaceholderSessionID(req.SessionID) {
//	    // create and persist a new session
//	}
//
// # Errors
//
// Domain errors are sentinel values intended for errors.Is checks across
// package boundaries (ErrNotFound, ErrUnauthenticated, ErrForbidden).
package types
