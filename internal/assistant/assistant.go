package assistant

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/skillmarket/internal/embedder"
	"github.com/dshills/skillmarket/internal/llm"
	"github.com/dshills/skillmarket/internal/storage"
	"github.com/dshills/skillmarket/pkg/types"
)

// Options tunes retrieval and completion
type Options struct {
	SemanticThreshold  float64
	SemanticCount      int
	ReferenceThreshold float64
	ReferenceCount     int
	CategoryExamples   int // listings fetched per mentioned category
	HistoryWindow      int // trailing history entries scanned for references and categories
	Temperature        float64
	MaxTokens          int
}

// DefaultOptions returns the production settings
func DefaultOptions() Options {
	return Options{
		SemanticThreshold:  0.6,
		SemanticCount:      5,
		ReferenceThreshold: 0.6,
		ReferenceCount:     3,
		CategoryExamples:   3,
		HistoryWindow:      3,
		Temperature:        0.7,
		MaxTokens:          500,
	}
}

// Assistant answers chat turns grounded in marketplace listings
type Assistant struct {
	storage  storage.Storage
	embedder embedder.Embedder
	llm      llm.Client
	opts     Options
}

// New creates an Assistant with DefaultOptions
func New(store storage.Storage, emb embedder.Embedder, client llm.Client) *Assistant {
	return NewWithOptions(store, emb, client, DefaultOptions())
}

// NewWithOptions creates an Assistant with explicit options
func NewWithOptions(store storage.Storage, emb embedder.Embedder, client llm.Client, opts Options) *Assistant {
	return &Assistant{
		storage:  store,
		embedder: emb,
		llm:      client,
		opts:     opts,
	}
}

// Reply runs one chat turn for callerID. Both the inbound message and the
// reply are persisted.
//
// Errors are fatal to the turn: ErrEmptyMessage, ErrInvalidHistory,
// ErrUnauthenticated when there is no caller, ErrNotFound or ErrForbidden
// for a session id the caller does not own, and any failure to persist,
// embed or complete. The user message stays stored if a later step fails.
func (a *Assistant) Reply(ctx context.Context, callerID string, req types.ChatRequest) (*types.ChatReply, error) {
	startTime := time.Now()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, types.ErrEmptyMessage
	}
	history, err := types.NormalizeHistory(req.SessionHistory)
	if err != nil {
		return nil, err
	}

	sessionID, err := a.resolveSession(ctx, callerID, req.SessionID, message)
	if err != nil {
		return nil, err
	}

	if err := a.storage.AppendChatMessage(ctx, &types.ChatMessage{
		SessionID: sessionID,
		Sender:    types.SenderUser,
		Text:      message,
	}); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	embedding, err := a.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: message})
	if err != nil {
		return nil, fmt.Errorf("failed to embed message: %w", err)
	}

	bundle := a.gatherContext(ctx, embedding.Vector, scanTexts(history, message, a.opts.HistoryWindow))

	reply, err := a.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    BuildPrompt(bundle, history, message),
		Temperature: llm.Float64(a.opts.Temperature),
		MaxTokens:   llm.Int(a.opts.MaxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate completion: %w", err)
	}

	if err := a.storage.AppendChatMessage(ctx, &types.ChatMessage{
		SessionID: sessionID,
		Sender:    types.SenderBot,
		Text:      reply,
	}); err != nil {
		return nil, fmt.Errorf("failed to store reply: %w", err)
	}

	log.Printf("chat turn for session %s: semantic=%d referenced=%d categories=%d in %s",
		sessionID, len(bundle.Semantic), len(bundle.Referenced), len(bundle.Categories), time.Since(startTime))

	return &types.ChatReply{Response: reply, SessionID: sessionID}, nil
}

// resolveSession promotes a placeholder id to a persisted session owned by
// callerID. Any other id must name a session callerID already owns.
func (a *Assistant) resolveSession(ctx context.Context, callerID, sessionID, message string) (string, error) {
	if callerID == "" {
		return "", types.ErrUnauthenticated
	}
	if !types.IsPlaceholderSessionID(sessionID) {
		session, err := a.storage.GetChatSession(ctx, sessionID)
		if err != nil {
			return "", fmt.Errorf("failed to load chat session: %w", err)
		}
		if session.UserID != callerID {
			return "", types.ErrForbidden
		}
		return session.ID, nil
	}

	session := &types.ChatSession{
		UserID: callerID,
		Name:   types.SessionNameFromMessage(message),
	}
	if err := a.storage.CreateChatSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create chat session: %w", err)
	}
	return session.ID, nil
}

// scanTexts returns the trailing window of history followed by message
func scanTexts(history []types.HistoryEntry, message string, window int) []string {
	start := len(history) - window
	if start < 0 || window < 0 {
		start = 0
	}
	texts := make([]string, 0, len(history)-start+1)
	for _, h := range history[start:] {
		texts = append(texts, h.Text)
	}
	return append(texts, message)
}

// gatherContext runs the semantic, reference and category branches
// concurrently. A failing branch is logged and left empty.
func (a *Assistant) gatherContext(ctx context.Context, vector []float32, texts []string) *ContextBundle {
	bundle := &ContextBundle{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		listings, err := a.semanticContext(gctx, vector)
		if err != nil {
			log.Printf("WARN: semantic context unavailable: %v", err)
			return nil
		}
		bundle.Semantic = listings
		return nil
	})
	g.Go(func() error {
		listings, err := a.referenceContext(gctx, texts)
		if err != nil {
			log.Printf("WARN: reference context unavailable: %v", err)
			return nil
		}
		bundle.Referenced = listings
		return nil
	})
	g.Go(func() error {
		bundle.Categories = a.categoryContext(gctx, texts)
		return nil
	})
	_ = g.Wait()

	return bundle
}

func (a *Assistant) semanticContext(ctx context.Context, vector []float32) ([]*types.Listing, error) {
	matches, err := a.storage.MatchListings(ctx, vector, a.opts.SemanticThreshold, a.opts.SemanticCount)
	if err != nil {
		return nil, fmt.Errorf("match listings: %w", err)
	}
	return a.fetchListings(ctx, matches)
}

func (a *Assistant) referenceContext(ctx context.Context, texts []string) ([]*types.Listing, error) {
	listingID, ok := MostRecentReference(texts...)
	if !ok {
		return nil, nil
	}
	matches, err := a.storage.SimilarListings(ctx, listingID, a.opts.ReferenceThreshold, a.opts.ReferenceCount)
	if err != nil {
		return nil, fmt.Errorf("similar listings for %s: %w", listingID, err)
	}
	return a.fetchListings(ctx, matches)
}

// fetchListings loads the matched listings in similarity order. Listings
// deleted since the match are skipped.
func (a *Assistant) fetchListings(ctx context.Context, matches []storage.VectorResult) ([]*types.Listing, error) {
	if len(matches) == 0 {
		return nil, nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ListingID
	}
	listings, err := a.storage.GetListingsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}
	return listings, nil
}

// categoryContext fetches example listings for each mentioned category
// concurrently, keeping keyword order.
func (a *Assistant) categoryContext(ctx context.Context, texts []string) []CategoryExamples {
	keywords := ExtractCategoryMentions(CategoryKeywords, texts...)
	if len(keywords) == 0 {
		return nil
	}

	groups := make([]CategoryExamples, len(keywords))
	var wg sync.WaitGroup
	for i, keyword := range keywords {
		wg.Add(1)
		go func(i int, keyword string) {
			defer wg.Done()
			groups[i].Keyword = keyword
			listings, err := a.storage.SearchListings(ctx, storage.ListingFilter{
				CategoryContains: keyword,
				Limit:            a.opts.CategoryExamples,
			})
			if err != nil {
				log.Printf("WARN: category context for %q unavailable: %v", keyword, err)
				return
			}
			groups[i].Listings = listings
		}(i, keyword)
	}
	wg.Wait()

	kept := groups[:0]
	for _, g := range groups {
		if len(g.Listings) > 0 {
			kept = append(kept, g)
		}
	}
	return kept
}
