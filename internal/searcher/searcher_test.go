package searcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/skillmarket/internal/storage"
	"github.com/dshills/skillmarket/pkg/types"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func addListing(t *testing.T, store storage.Storage, title, description, category string, lt types.ListingType, owner string, age time.Duration) *types.Listing {
	t.Helper()
	l := &types.Listing{
		Title:       title,
		Description: description,
		Category:    category,
		ListingType: lt,
		UserID:      owner,
		CreatedAt:   baseTime.Add(-age),
	}
	require.NoError(t, store.CreateListing(context.Background(), l))
	return l
}

func ids(listings []*types.Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.ID
	}
	return out
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		query      string
		normalized string
		terms      []string
	}{
		{"", "", []string{}},
		{"   ", "", []string{}},
		{"Guitar  Lessons ", "guitar lessons", []string{"guitar", "lessons"}},
		{"a bb", "bb", []string{"bb"}},
		{"a b c", "", []string{}},
		{"é café", "café", []string{"café"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			normalized, terms := Normalize(tt.query)
			assert.Equal(t, tt.normalized, normalized)
			assert.Equal(t, tt.terms, terms)
		})
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	s := NewSearcher(setupStore(t))
	ctx := context.Background()

	for _, q := range []string{"", "   ", "a", "x y"} {
		results, err := s.Search(ctx, SearchRequest{Query: q})
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	}
}

func TestSearch_Dedup(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, store.UpsertProfile(context.Background(), &types.Profile{ID: "owner-1", Username: "designpro"}))
	l := addListing(t, store, "Design help", "Logo design for startups", "Design", types.ListingProviding, "owner-1", 0)

	s := NewSearcher(store)
	results, err := s.Search(context.Background(), SearchRequest{Query: "design logo design"})
	require.NoError(t, err)
	assert.Equal(t, []string{l.ID}, ids(results))
}

func TestSearch_SingleCharTermsExcluded(t *testing.T) {
	store := setupStore(t)
	addListing(t, store, "bb guns", "", "Other", types.ListingTrading, "u1", time.Hour)
	addListing(t, store, "A cappella", "sing a song", "Music", types.ListingProviding, "u2", 2*time.Hour)
	addListing(t, store, "Clubbing", "bb in description", "Lifestyle", types.ListingLooking, "u3", 0)

	s := NewSearcher(store)
	ctx := context.Background()

	withA, err := s.Search(ctx, SearchRequest{Query: "a bb"})
	require.NoError(t, err)
	without, err := s.Search(ctx, SearchRequest{Query: "bb"})
	require.NoError(t, err)

	assert.Equal(t, ids(without), ids(withA))
	assert.Len(t, withA, 2)
}

func TestSearch_NonASCIICaseInsensitive(t *testing.T) {
	store := setupStore(t)
	l := addListing(t, store, "ÉCOLE DE CUISINE", "Cours du soir", "Cooking", types.ListingProviding, "u1", 0)
	addListing(t, store, "Piano", "", "Music", types.ListingProviding, "u2", time.Hour)

	s := NewSearcher(store)
	results, err := s.Search(context.Background(), SearchRequest{Query: "école"})
	require.NoError(t, err)
	assert.Equal(t, []string{l.ID}, ids(results))
}

func TestSearch_RelevanceOrdering(t *testing.T) {
	store := setupStore(t)
	// Older listings for the better matches so ordering is not just recency
	exact := addListing(t, store, "Guitar Lessons", "", "Music", types.ListingProviding, "u1", 3*time.Hour)
	partial := addListing(t, store, "Guitar Lessons For Beginners", "", "Music", types.ListingProviding, "u1", 2*time.Hour)
	combo := addListing(t, store, "Piano Guitar Combo", "", "Music", types.ListingProviding, "u1", time.Hour)
	newest := addListing(t, store, "Violin", "lessons every week", "Music", types.ListingProviding, "u1", 0)

	s := NewSearcher(store)
	results, err := s.Search(context.Background(), SearchRequest{Query: "guitar lessons"})
	require.NoError(t, err)
	assert.Equal(t, []string{exact.ID, partial.ID, newest.ID, combo.ID}, ids(results))
}

func TestSearch_FilterConjunction(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertProfile(ctx, &types.Profile{ID: "u9", Username: "design_guru"}))

	match := addListing(t, store, "Logo design", "", "Design", types.ListingProviding, "u1", 0)
	addListing(t, store, "Web design", "", "Design", types.ListingLooking, "u2", 0)
	addListing(t, store, "Interior design", "", "Lifestyle", types.ListingProviding, "u3", 0)
	addListing(t, store, "Guitar", "", "Music", types.ListingProviding, "u9", 0)

	s := NewSearcher(store)
	results, err := s.Search(ctx, SearchRequest{
		Query:       "design",
		ListingType: string(types.ListingProviding),
		Category:    "Design",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{match.ID}, ids(results))
	for _, l := range results {
		assert.Equal(t, types.ListingProviding, l.ListingType)
		assert.Equal(t, "Design", l.Category)
	}

	all, err := s.Search(ctx, SearchRequest{Query: "design", ListingType: types.AllListingTypes})
	require.NoError(t, err)
	assert.Len(t, all, 4, "All Types disables the type filter and owner names match")
}

func TestSearch_OwnerLookup(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertProfile(ctx, &types.Profile{ID: "u1", Username: "MariaTeaches"}))
	require.NoError(t, store.UpsertProfile(ctx, &types.Profile{ID: "u2", Username: "bob"}))

	mine := addListing(t, store, "Spanish tutoring", "", "Language", types.ListingProviding, "u1", 0)
	addListing(t, store, "French tutoring", "", "Language", types.ListingProviding, "u2", 0)

	s := NewSearcher(store)
	results, err := s.Search(ctx, SearchRequest{Query: "maria"})
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID}, ids(results))
}

// flakyStore fails selected lookups
type flakyStore struct {
	storage.Storage
	failProfiles bool
	failTitle    bool
	calls        int32
}

func (f *flakyStore) FindProfilesByUsername(ctx context.Context, fragment string) ([]*types.Profile, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.failProfiles {
		return nil, errors.New("profiles unavailable")
	}
	return f.Storage.FindProfilesByUsername(ctx, fragment)
}

func (f *flakyStore) SearchListings(ctx context.Context, filter storage.ListingFilter) ([]*types.Listing, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.failTitle && filter.TitleContains != "" {
		return nil, errors.New("title index unavailable")
	}
	return f.Storage.SearchListings(ctx, filter)
}

func TestSearch_SubQueryFailureDegrades(t *testing.T) {
	store := setupStore(t)
	byDesc := addListing(t, store, "Cooking class", "learn pasta", "Cooking", types.ListingProviding, "u1", 0)
	addListing(t, store, "Pasta night", "", "Cooking", types.ListingProviding, "u1", time.Hour)

	flaky := &flakyStore{Storage: store, failProfiles: true, failTitle: true}
	s := NewSearcher(flaky)

	results, err := s.Search(context.Background(), SearchRequest{Query: "pasta"})
	require.NoError(t, err)
	assert.Equal(t, []string{byDesc.ID}, ids(results))
	assert.Equal(t, int32(3), atomic.LoadInt32(&flaky.calls))
}

func TestSearch_ContextCancelled(t *testing.T) {
	store := setupStore(t)
	addListing(t, store, "Yoga", "", "Fitness", types.ListingProviding, "u1", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSearcher(store).Search(ctx, SearchRequest{Query: "yoga"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMerge(t *testing.T) {
	a1 := &types.Listing{ID: "a", Title: "first"}
	a2 := &types.Listing{ID: "a", Title: "second"}
	b := &types.Listing{ID: "b"}

	merged := Merge([]*types.Listing{a1}, nil, []*types.Listing{b, a2, nil})
	require.Len(t, merged, 2)
	assert.Equal(t, "first", merged[0].Title)
	assert.Equal(t, "b", merged[1].ID)

	assert.NotNil(t, Merge())
}

func TestRank_StableWithinTier(t *testing.T) {
	same := baseTime
	listings := []*types.Listing{
		{ID: "1", Title: "Other", CreatedAt: same},
		{ID: "2", Title: "Other too", CreatedAt: same},
		{ID: "3", Title: "YOGA", CreatedAt: same.Add(-time.Hour)},
	}
	ranked := Rank(listings, "yoga")
	assert.Equal(t, []string{"3", "1", "2"}, ids(ranked))
}
