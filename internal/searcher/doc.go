// Package searcher implements the marketplace listing search.
//
// A query is lowercased and split into terms; one-character terms are
// dropped. Every term runs three lookups concurrently:
//   - title contains the term
//   - description contains the term
//   - owner username contains the term (profiles first, then their listings)
//
// All lookups share the optional listing type and category equality filters.
// Results are merged in term order, then title, description, owner order,
// keeping the first listing seen for each ID.
//
// # Ranking
//
// Merged listings are stable-sorted into three tiers, newest first within
// each:
//  1. title equals the normalized query
//  2. title contains the normalized query
//  3. everything else
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store)
//
//	listings, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:       "guitar lessons",
//	    ListingType: "Providing Skills",
//	})
//
// The engine never paginates; transports slice the result.
//
// # Failures
//
// A failing lookup is logged and contributes no results. Search only
// returns an error when ctx is cancelled.
package searcher
