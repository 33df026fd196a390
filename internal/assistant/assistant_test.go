package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/skillmarket/internal/embedder"
	"github.com/dshills/skillmarket/internal/llm"
	"github.com/dshills/skillmarket/internal/storage"
	"github.com/dshills/skillmarket/pkg/types"
)

// stubEmbedder returns the same vector for every text
type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &embedder.Embedding{Vector: s.vector, Dimension: len(s.vector), Provider: "stub", Model: "stub"}, nil
}

func (s *stubEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	embs := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := s.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		embs[i] = emb
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: embs, Provider: "stub", Model: "stub"}, nil
}

func (s *stubEmbedder) Dimension() int   { return len(s.vector) }
func (s *stubEmbedder) Provider() string { return "stub" }
func (s *stubEmbedder) Model() string    { return "stub" }
func (s *stubEmbedder) Close() error     { return nil }

// recordingStore fails or records selected calls on top of a real store
type recordingStore struct {
	storage.Storage

	failMatch   bool
	failSimilar bool
	failAppend  bool

	mu         sync.Mutex
	similarIDs []string
}

func (r *recordingStore) MatchListings(ctx context.Context, vector []float32, threshold float64, count int) ([]storage.VectorResult, error) {
	if r.failMatch {
		return nil, errors.New("match_listings unavailable")
	}
	return r.Storage.MatchListings(ctx, vector, threshold, count)
}

func (r *recordingStore) SimilarListings(ctx context.Context, listingID string, threshold float64, count int) ([]storage.VectorResult, error) {
	r.mu.Lock()
	r.similarIDs = append(r.similarIDs, listingID)
	r.mu.Unlock()
	if r.failSimilar {
		return nil, errors.New("similar_listings unavailable")
	}
	return r.Storage.SimilarListings(ctx, listingID, threshold, count)
}

func (r *recordingStore) AppendChatMessage(ctx context.Context, message *types.ChatMessage) error {
	if r.failAppend {
		return errors.New("write failed")
	}
	return r.Storage.AppendChatMessage(ctx, message)
}

type fixture struct {
	store    *recordingStore
	embedder *stubEmbedder
	llm      *llm.MockClient
	asst     *Assistant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sqlite, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	f := &fixture{
		store:    &recordingStore{Storage: sqlite},
		embedder: &stubEmbedder{vector: []float32{1, 0, 0}},
		llm:      llm.NewMockClient(),
	}
	f.llm.Reply = "Here is what I found."
	f.asst = New(f.store, f.embedder, f.llm)
	return f
}

func (f *fixture) addListing(t *testing.T, title, category string, vector []float32) *types.Listing {
	t.Helper()
	ctx := context.Background()
	price := 25.0
	l := &types.Listing{
		Title:       title,
		Description: "Description of " + title,
		Category:    category,
		ListingType: types.ListingProviding,
		Price:       &price,
		UserID:      "owner",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, f.store.CreateListing(ctx, l))
	if vector != nil {
		require.NoError(t, f.store.UpsertListingEmbedding(ctx, &storage.ListingEmbedding{
			ListingID: l.ID, Vector: vector, Provider: "stub", Model: "stub", ContentHash: l.ID,
		}))
	}
	return l
}

func (f *fixture) systemPrompt(t *testing.T) string {
	t.Helper()
	reqs := f.llm.Requests()
	require.NotEmpty(t, reqs)
	msgs := reqs[len(reqs)-1].Messages
	require.NotEmpty(t, msgs)
	require.Equal(t, llm.RoleSystem, msgs[0].Role)
	return msgs[0].Content
}

func TestReply_PromotesPlaceholderSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply, err := f.asst.Reply(ctx, "user-1", types.ChatRequest{Message: "Hello there", SessionID: "temp-1700000000"})
	require.NoError(t, err)
	assert.Equal(t, "Here is what I found.", reply.Response)
	assert.NotEqual(t, "temp-1700000000", reply.SessionID)
	assert.False(t, types.IsPlaceholderSessionID(reply.SessionID))

	session, err := f.store.GetChatSession(ctx, reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, "Hello there", session.Name)

	second, err := f.asst.Reply(ctx, "user-1", types.ChatRequest{
		Message:        "And again",
		SessionID:      reply.SessionID,
		SessionHistory: []types.HistoryEntry{{Text: "Hello there", Sender: types.SenderUser}, {Text: reply.Response, Sender: types.SenderBot}},
	})
	require.NoError(t, err)
	assert.Equal(t, reply.SessionID, second.SessionID)

	sessions, err := f.store.ListChatSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	messages, err := f.store.ListChatMessages(ctx, reply.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, types.SenderUser, messages[0].Sender)
	assert.Equal(t, types.SenderBot, messages[1].Sender)
	assert.Equal(t, "And again", messages[2].Text)
}

func TestReply_NewSessionRequiresCaller(t *testing.T) {
	f := newFixture(t)

	_, err := f.asst.Reply(context.Background(), "", types.ChatRequest{Message: "hi", SessionID: "temp-abc"})
	assert.ErrorIs(t, err, types.ErrUnauthenticated)
	assert.Empty(t, f.llm.Requests())
}

func TestReply_EmptyMessage(t *testing.T) {
	f := newFixture(t)

	_, err := f.asst.Reply(context.Background(), "user-1", types.ChatRequest{Message: "   ", SessionID: "temp-1"})
	assert.ErrorIs(t, err, types.ErrEmptyMessage)
}

func TestReply_ContextDegradation(t *testing.T) {
	f := newFixture(t)
	f.store.failMatch = true
	f.store.failSimilar = true
	f.addListing(t, "Wedding photography", "Photography", []float32{1, 0, 0})

	reply, err := f.asst.Reply(context.Background(), "user-1", types.ChatRequest{
		Message:   "Is /listings/abc-123 still available?",
		SessionID: "temp-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Response)

	prompt := f.systemPrompt(t)
	assert.NotContains(t, prompt, "Relevant listings")
	assert.NotContains(t, prompt, "similar to what was mentioned")
	assert.NotContains(t, prompt, ContextHeader)
}

func TestReply_PromptIncludesContext(t *testing.T) {
	f := newFixture(t)
	semantic := f.addListing(t, "Portrait sessions", "Photography", []float32{1, 0, 0})
	f.addListing(t, "Unrelated", "Music", []float32{0, 1, 0})
	cooking := f.addListing(t, "Pasta class", "Cooking", nil)

	_, err := f.asst.Reply(context.Background(), "user-1", types.ChatRequest{
		Message:   "Any cooking teachers?",
		SessionID: "temp-1",
	})
	require.NoError(t, err)

	prompt := f.systemPrompt(t)
	assert.Equal(t, 1, strings.Count(prompt, ContextHeader))
	assert.Contains(t, prompt, "Link: /listings/"+semantic.ID)
	assert.Contains(t, prompt, "Cooking:\n- Title: Pasta class")
	assert.Contains(t, prompt, "Link: /listings/"+cooking.ID)
	assert.NotContains(t, prompt, "Title: Unrelated")
	assert.Contains(t, prompt, "Price: $25.00")

	req := f.llm.Requests()[0]
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.7, *req.Temperature, 1e-9)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 500, *req.MaxTokens)

	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Equal(t, "Any cooking teachers?", last.Content)
}

func TestReply_ReferenceUsesMostRecent(t *testing.T) {
	f := newFixture(t)
	source := f.addListing(t, "Guitar lessons", "Music", []float32{0, 0, 1})
	similar := f.addListing(t, "Bass lessons", "Music", []float32{0, 0.1, 1})

	history := []types.HistoryEntry{
		{Text: "old /listings/0000-dead", Sender: types.SenderUser},
		{Text: "filler", Sender: types.SenderBot},
		{Text: "filler", Sender: types.SenderUser},
		{Text: "filler", Sender: types.SenderBot},
	}
	_, err := f.asst.Reply(context.Background(), "user-1", types.ChatRequest{
		Message:        "Compare /listings/abcdef-1234 with /listings/" + source.ID,
		SessionID:      "temp-1",
		SessionHistory: history,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{source.ID}, f.store.similarIDs)
	prompt := f.systemPrompt(t)
	assert.Contains(t, prompt, "Listings similar to what was mentioned:\n- Title: Bass lessons")
	assert.Contains(t, prompt, "Link: /listings/"+similar.ID)
}

func TestReply_HistoryOutsideWindowIgnored(t *testing.T) {
	f := newFixture(t)

	history := []types.HistoryEntry{
		{Text: "see /listings/aaaa", Sender: types.SenderUser},
		{Text: "one", Sender: types.SenderBot},
		{Text: "two", Sender: types.SenderUser},
		{Text: "three", Sender: types.SenderBot},
	}
	_, err := f.asst.Reply(context.Background(), "user-1", types.ChatRequest{Message: "thanks", SessionID: "temp-1", SessionHistory: history})
	require.NoError(t, err)
	assert.Empty(t, f.store.similarIDs)

	// Full history still reaches the model
	msgs := f.llm.Requests()[0].Messages
	require.Len(t, msgs, 6)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[2].Role)
}

func TestReply_EmbeddingFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.embedder.err = errors.New("embedding service down")
	ctx := context.Background()

	_, err := f.asst.Reply(ctx, "user-1", types.ChatRequest{Message: "hello", SessionID: "temp-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding service down")
	assert.Empty(t, f.llm.Requests())

	// The user message stays stored without a reply
	sessions, err := f.store.ListChatSessions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	messages, err := f.store.ListChatMessages(ctx, sessions[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, types.SenderUser, messages[0].Sender)
}

func TestReply_CompletionFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.llm.Err = errors.New("rate limited")

	_, err := f.asst.Reply(context.Background(), "user-1", types.ChatRequest{Message: "hello", SessionID: "temp-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestReply_PersistenceFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.store.failAppend = true

	_, err := f.asst.Reply(context.Background(), "user-1", types.ChatRequest{Message: "hello", SessionID: "temp-1"})
	require.Error(t, err)
	assert.Empty(t, f.llm.Requests())
}

func TestReply_ReusesOwnedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := &types.ChatSession{UserID: "user-1", Name: "Existing"}
	require.NoError(t, f.store.CreateChatSession(ctx, session))

	reply, err := f.asst.Reply(ctx, "user-1", types.ChatRequest{Message: "hello", SessionID: session.ID})
	require.NoError(t, err)
	assert.Equal(t, session.ID, reply.SessionID)
}

func TestReply_SessionOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := &types.ChatSession{UserID: "alice", Name: "Alice's chat"}
	require.NoError(t, f.store.CreateChatSession(ctx, session))

	tests := []struct {
		name      string
		caller    string
		sessionID string
		wantErr   error
	}{
		{"anonymous caller", "", session.ID, types.ErrUnauthenticated},
		{"another user", "mallory", session.ID, types.ErrForbidden},
		{"unknown session", "alice", "no-such-session", types.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.asst.Reply(ctx, tt.caller, types.ChatRequest{Message: "injected", SessionID: tt.sessionID})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Nothing reached the session or the model
	messages, err := f.store.ListChatMessages(ctx, session.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.Empty(t, f.llm.Requests())
}

func TestReply_InvalidHistorySender(t *testing.T) {
	f := newFixture(t)

	_, err := f.asst.Reply(context.Background(), "user-1", types.ChatRequest{
		Message:        "hello",
		SessionID:      "temp-1",
		SessionHistory: []types.HistoryEntry{{Text: "hi", Sender: "robot"}},
	})
	assert.ErrorIs(t, err, types.ErrInvalidHistory)
	assert.Empty(t, f.llm.Requests())
}
