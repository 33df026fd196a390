package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/skillmarket/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func createListing(t *testing.T, s Storage, title, description, category string, lt types.ListingType, owner string, created time.Time) *types.Listing {
	t.Helper()
	listing := &types.Listing{
		Title:       title,
		Description: description,
		Category:    category,
		ListingType: lt,
		UserID:      owner,
		CreatedAt:   created,
	}
	require.NoError(t, s.CreateListing(context.Background(), listing))
	return listing
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)
}

func TestCreateAndGetListing(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	price := 40.0
	listing := &types.Listing{
		Title:       "Guitar Lessons",
		Description: "Weekly lessons",
		Category:    "Music",
		ListingType: types.ListingProviding,
		Price:       &price,
		UserID:      "user-1",
	}
	require.NoError(t, storage.CreateListing(ctx, listing))
	assert.NotEmpty(t, listing.ID)
	assert.False(t, listing.CreatedAt.IsZero())

	got, err := storage.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.Title, got.Title)
	assert.Equal(t, types.ListingProviding, got.ListingType)
	require.NotNil(t, got.Price)
	assert.InDelta(t, 40.0, *got.Price, 0.0001)
	assert.WithinDuration(t, listing.CreatedAt, got.CreatedAt, time.Millisecond)

	noPrice := createListing(t, storage, "Trade", "", "Other", types.ListingTrading, "user-1", time.Now())
	got, err = storage.GetListing(ctx, noPrice.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Price)
}

func TestGetListing_NotFound(t *testing.T) {
	storage := setupTestDB(t)

	_, err := storage.GetListing(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestUpdateAndDeleteListing(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	listing := createListing(t, storage, "Old", "desc", "Design", types.ListingLooking, "u1", time.Now())
	listing.Title = "New"
	require.NoError(t, storage.UpdateListing(ctx, listing))

	got, err := storage.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)

	require.NoError(t, storage.UpsertListingEmbedding(ctx, &ListingEmbedding{
		ListingID: listing.ID, Vector: []float32{1, 0}, Provider: "local", Model: "m", ContentHash: "h",
	}))

	require.NoError(t, storage.DeleteListing(ctx, listing.ID))
	_, err = storage.GetListing(ctx, listing.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Embedding removed by cascade
	_, err = storage.GetListingEmbedding(ctx, listing.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, storage.DeleteListing(ctx, listing.ID), ErrNotFound)
	assert.ErrorIs(t, storage.UpdateListing(ctx, listing), ErrNotFound)
}

func TestGetListingsByIDs_PreservesOrder(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	a := createListing(t, storage, "A", "", "Music", types.ListingProviding, "u1", time.Now())
	b := createListing(t, storage, "B", "", "Music", types.ListingProviding, "u1", time.Now())
	c := createListing(t, storage, "C", "", "Music", types.ListingProviding, "u1", time.Now())

	got, err := storage.GetListingsByIDs(ctx, []string{c.ID, "gone", a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, []string{got[0].ID, got[1].ID, got[2].ID})

	empty, err := storage.GetListingsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSearchListings_Filters(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	createListing(t, storage, "Logo DESIGN", "Brand work", "Design", types.ListingProviding, "u1", base)
	createListing(t, storage, "Web design help", "Need a site", "Design", types.ListingLooking, "u2", base.Add(time.Hour))
	createListing(t, storage, "Guitar", "design your own riffs", "Music", types.ListingProviding, "u3", base.Add(2*time.Hour))
	createListing(t, storage, "ÉCOLE DE CUISINE", "Kochkurs in der HAUPTSTRAßE", "Cooking", types.ListingProviding, "u4", base.Add(-time.Hour))

	tests := []struct {
		name   string
		filter ListingFilter
		want   []string
	}{
		{"title contains is case-insensitive", ListingFilter{TitleContains: "design"}, []string{"Web design help", "Logo DESIGN"}},
		{"description contains", ListingFilter{DescriptionContains: "DESIGN"}, []string{"Guitar"}},
		{"listing type equality", ListingFilter{TitleContains: "design", ListingType: string(types.ListingProviding)}, []string{"Logo DESIGN"}},
		{"category equality", ListingFilter{Category: "Music"}, []string{"Guitar"}},
		{"category contains", ListingFilter{CategoryContains: "desig"}, []string{"Web design help", "Logo DESIGN"}},
		{"owner ids", ListingFilter{OwnerIDs: []string{"u1", "u3"}}, []string{"Guitar", "Logo DESIGN"}},
		{"empty owner ids match nothing", ListingFilter{OwnerIDs: []string{}}, []string{}},
		{"limit", ListingFilter{Limit: 1}, []string{"Guitar"}},
		{"like wildcards are literal", ListingFilter{TitleContains: "%"}, []string{}},
		{"non-ascii title folds case", ListingFilter{TitleContains: "école"}, []string{"ÉCOLE DE CUISINE"}},
		{"non-ascii description folds case", ListingFilter{DescriptionContains: "straße"}, []string{"ÉCOLE DE CUISINE"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storage.SearchListings(ctx, tt.filter)
			require.NoError(t, err)
			titles := make([]string, len(got))
			for i, l := range got {
				titles[i] = l.Title
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestListListings(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		createListing(t, storage, string(rune('A'+i)), "", "Other", types.ListingTrading, "u", base.Add(time.Duration(i)*time.Minute))
	}

	all, err := storage.ListListings(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, "E", all[0].Title)

	page, err := storage.ListListings(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "C", page[0].Title)
	assert.Equal(t, "B", page[1].Title)
}

func TestProfiles(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	alice := &types.Profile{ID: "u1", Username: "AliceDesigns"}
	bob := &types.Profile{ID: "u2", Username: "bob"}
	require.NoError(t, storage.UpsertProfile(ctx, alice))
	require.NoError(t, storage.UpsertProfile(ctx, bob))

	found, err := storage.FindProfilesByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "u1", found[0].ID)

	bob.Username = "bobby_design"
	require.NoError(t, storage.UpsertProfile(ctx, bob))

	found, err = storage.FindProfilesByUsername(ctx, "DESIGN")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	require.NoError(t, storage.UpsertProfile(ctx, &types.Profile{ID: "u3", Username: "ÖZGÜR"}))
	found, err = storage.FindProfilesByUsername(ctx, "özgür")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "u3", found[0].ID)

	got, err := storage.GetProfile(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "bobby_design", got.Username)

	_, err = storage.GetProfile(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListingEmbeddings(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	listing := createListing(t, storage, "A", "", "Music", types.ListingProviding, "u1", time.Now())

	emb := &ListingEmbedding{
		ListingID:   listing.ID,
		Vector:      []float32{0.1, 0.2, 0.3},
		Provider:    "local",
		Model:       "local-embeddings",
		ContentHash: "abc",
	}
	require.NoError(t, storage.UpsertListingEmbedding(ctx, emb))
	assert.Equal(t, 3, emb.Dimension)

	got, err := storage.GetListingEmbedding(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Vector)
	assert.Equal(t, "abc", got.ContentHash)

	emb.Vector = []float32{1, 1}
	emb.ContentHash = "def"
	require.NoError(t, storage.UpsertListingEmbedding(ctx, emb))

	got, err = storage.GetListingEmbedding(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Dimension)
	assert.Equal(t, "def", got.ContentHash)

	// Unknown listing violates the foreign key
	err = storage.UpsertListingEmbedding(ctx, &ListingEmbedding{ListingID: "missing", Vector: []float32{1}, Provider: "p", Model: "m"})
	assert.Error(t, err)
}

func TestChatSessionsAndMessages(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	session := &types.ChatSession{UserID: "u1", Name: "Photography help"}
	require.NoError(t, storage.CreateChatSession(ctx, session))
	assert.NotEmpty(t, session.ID)

	texts := []struct {
		sender types.Sender
		text   string
	}{
		{types.SenderUser, "hi"},
		{types.SenderBot, "hello"},
		{types.SenderUser, "find me a tutor"},
	}
	for _, m := range texts {
		msg := &types.ChatMessage{SessionID: session.ID, Sender: m.sender, Text: m.text}
		require.NoError(t, storage.AppendChatMessage(ctx, msg))
		assert.Greater(t, msg.ID, int64(0))
	}

	all, err := storage.ListChatMessages(ctx, session.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "hi", all[0].Text)
	assert.Equal(t, types.SenderBot, all[1].Sender)

	recent, err := storage.ListChatMessages(ctx, session.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "hello", recent[0].Text)
	assert.Equal(t, "find me a tutor", recent[1].Text)

	other := &types.ChatSession{UserID: "u2", Name: "Other"}
	require.NoError(t, storage.CreateChatSession(ctx, other))

	sessions, err := storage.ListChatSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, session.ID, sessions[0].ID)

	got, err := storage.GetChatSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Photography help", got.Name)

	_, err = storage.GetChatSession(ctx, "temp-123")
	assert.ErrorIs(t, err, ErrNotFound)

	// Messages require an existing session
	err = storage.AppendChatMessage(ctx, &types.ChatMessage{SessionID: "nope", Sender: types.SenderUser, Text: "x"})
	assert.Error(t, err)

	// Invalid sender rejected by the schema
	err = storage.AppendChatMessage(ctx, &types.ChatMessage{SessionID: session.ID, Sender: "admin", Text: "x"})
	assert.Error(t, err)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, status.Backend)
	assert.Equal(t, BuildMode, status.BuildMode)
	assert.Equal(t, 0, status.ListingsCount)
	assert.False(t, status.Health.EmbeddingsAvailable)
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)

	listing := createListing(t, storage, "A", "", "Music", types.ListingProviding, "u1", time.Now())
	require.NoError(t, storage.UpsertListingEmbedding(ctx, &ListingEmbedding{
		ListingID: listing.ID, Vector: []float32{1}, Provider: "p", Model: "m", ContentHash: "h",
	}))

	status, err = storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.ListingsCount)
	assert.Equal(t, 1, status.EmbeddingsCount)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.True(t, status.Health.EmbeddingsAvailable)
	assert.Equal(t, VectorExtensionAvailable, status.Health.VectorExtension)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "sqlite", "")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	path := t.TempDir() + "/nested/dir/market.db"
	s, err = Open(ctx, "", path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, "mysql", "x")
	assert.Error(t, err)

	_, err = Open(ctx, "postgres", "")
	assert.Error(t, err)
}
