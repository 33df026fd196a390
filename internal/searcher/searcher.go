package searcher

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/skillmarket/internal/storage"
	"github.com/dshills/skillmarket/pkg/types"
)

// LookupKind identifies which field a sub-query matches against
type LookupKind int

const (
	LookupTitle LookupKind = iota
	LookupDescription
	LookupOwner
)

// lookupKinds is the merge order within one term
var lookupKinds = []LookupKind{LookupTitle, LookupDescription, LookupOwner}

func (k LookupKind) String() string {
	switch k {
	case LookupTitle:
		return "title"
	case LookupDescription:
		return "description"
	case LookupOwner:
		return "owner"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DefaultConcurrency bounds the number of sub-queries in flight per search
const DefaultConcurrency = 8

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query       string
	ListingType string // Empty or types.AllListingTypes disables the filter
	Category    string // Empty disables the filter
}

// Searcher runs multi-term listing searches against a store
type Searcher struct {
	storage     storage.Storage
	concurrency int
}

// NewSearcher creates a new Searcher instance
func NewSearcher(store storage.Storage) *Searcher {
	return &Searcher{
		storage:     store,
		concurrency: DefaultConcurrency,
	}
}

// Normalize lowercases query and splits it on whitespace, dropping terms of
// one character. normalized is the kept terms joined by single spaces and is
// the phrase results are ranked against, so "a bb" and "bb" rank alike.
func Normalize(query string) (normalized string, terms []string) {
	fields := strings.Fields(strings.ToLower(query))
	terms = make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 1 {
			terms = append(terms, f)
		}
	}
	return strings.Join(terms, " "), terms
}

// Search returns the listings whose title, description or owner username
// contains any query term, deduplicated and ordered by relevance.
//
// A failing sub-query is logged and contributes nothing. The only error
// returned is the cancellation of ctx.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) ([]*types.Listing, error) {
	startTime := time.Now()

	normalized, terms := Normalize(req.Query)
	if len(terms) == 0 {
		return []*types.Listing{}, nil
	}

	base := storage.ListingFilter{Category: req.Category}
	if req.ListingType != "" && req.ListingType != types.AllListingTypes {
		base.ListingType = req.ListingType
	}

	// One slot per (term, kind) so the merge order does not depend on
	// goroutine scheduling
	slots := make([][]*types.Listing, len(terms)*len(lookupKinds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for ti, term := range terms {
		for ki, kind := range lookupKinds {
			slot := ti*len(lookupKinds) + ki
			term, kind := term, kind
			g.Go(func() error {
				listings, err := s.lookup(gctx, kind, term, base)
				if err != nil {
					log.Printf("WARN: search %s lookup for %q failed: %v", kind, term, err)
					return nil
				}
				slots[slot] = listings
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := Rank(Merge(slots...), normalized)

	log.Printf("search %q: %d terms, %d results in %s", normalized, len(terms), len(results), time.Since(startTime))
	return results, nil
}

// lookup runs one sub-query
func (s *Searcher) lookup(ctx context.Context, kind LookupKind, term string, base storage.ListingFilter) ([]*types.Listing, error) {
	filter := base
	switch kind {
	case LookupTitle:
		filter.TitleContains = term
	case LookupDescription:
		filter.DescriptionContains = term
	case LookupOwner:
		profiles, err := s.storage.FindProfilesByUsername(ctx, term)
		if err != nil {
			return nil, fmt.Errorf("profile lookup: %w", err)
		}
		if len(profiles) == 0 {
			return nil, nil
		}
		filter.OwnerIDs = make([]string, len(profiles))
		for i, p := range profiles {
			filter.OwnerIDs[i] = p.ID
		}
	default:
		return nil, fmt.Errorf("unknown lookup kind %v", kind)
	}
	return s.storage.SearchListings(ctx, filter)
}

// Merge concatenates groups in order, keeping the first listing seen for each ID
func Merge(groups ...[]*types.Listing) []*types.Listing {
	seen := make(map[string]struct{})
	merged := make([]*types.Listing, 0)
	for _, group := range groups {
		for _, l := range group {
			if l == nil {
				continue
			}
			if _, ok := seen[l.ID]; ok {
				continue
			}
			seen[l.ID] = struct{}{}
			merged = append(merged, l)
		}
	}
	return merged
}

// Relevance tiers, lower ranks first
const (
	tierExactTitle = iota
	tierTitleContains
	tierOther
)

func relevanceTier(l *types.Listing, normalized string) int {
	title := strings.ToLower(l.Title)
	switch {
	case title == normalized:
		return tierExactTitle
	case strings.Contains(title, normalized):
		return tierTitleContains
	default:
		return tierOther
	}
}

// Rank orders listings in place by relevance to the normalized query: exact
// title match, then title containing the query, then the rest. Each tier is
// newest first. The slice is returned for convenience.
func Rank(listings []*types.Listing, normalized string) []*types.Listing {
	tiers := make(map[string]int, len(listings))
	for _, l := range listings {
		tiers[l.ID] = relevanceTier(l, normalized)
	}
	sort.SliceStable(listings, func(i, j int) bool {
		ti, tj := tiers[listings[i].ID], tiers[listings[j].ID]
		if ti != tj {
			return ti < tj
		}
		return listings[i].CreatedAt.After(listings[j].CreatedAt)
	})
	return listings
}
