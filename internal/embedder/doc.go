// Package embedder turns listing text and chat messages into vectors.
//
// Listings are embedded by the indexer when they are written; chat messages
// are embedded by the assistant before the similarity lookup. Both sides must
// use the same provider and model, since vectors of different models are not
// comparable (stores only compare vectors of equal dimension).
//
// # Basic Usage
//
//	emb, err := embedder.New(ctx, embedder.Config{Provider: "openai", OpenAIAPIKey: key})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "I need help with wedding photography",
//	})
//
// # Provider Selection
//
//  1. Config.Provider when set
//  2. Else the first API key present: Jina, OpenAI, Gemini
//  3. Else the local provider (offline, feature-hashed vectors)
//
// Provider comparison:
//
//	jina    jina-embeddings-v3       1024 dims
//	openai  text-embedding-3-small   1536 dims
//	gemini  text-embedding-004        768 dims
//	local   feature hashing           384 dims
//
// # Caching
//
// Every provider consults a shared LRU Cache keyed by the SHA-256 of the
// text. A batch sends only the cache misses upstream.
//
// # Error Handling
//
// HTTP providers retry transient failures (network errors, 5xx, 429) with
// exponential backoff. Other 4xx responses fail immediately. Failures wrap
// ErrProviderFailed:
//
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // provider unavailable
//	}
package embedder
