// Package storage provides persistence for marketplace listings, profiles,
// listing embeddings and chat history.
//
// Two backends implement the Storage interface:
//   - SQLiteStorage: a single-file database, the default for local use
//   - PostgresStorage: a pgx pool against Postgres with the pgvector extension
//
// # Database Schema
//
// Tables:
//   - profiles: user id and username
//   - listings: title, description, category, listing type, optional price, owner
//   - listing_embeddings: one vector per listing plus the hash of the embedded text
//   - chat_sessions: named conversations owned by a user
//   - chat_messages: ordered user and bot messages within a session
//
// # Similarity
//
// MatchListings ranks listings by cosine similarity to a query vector and
// SimilarListings ranks them against another listing's stored vector. Both
// keep only results at or above the threshold. On Postgres they are the
// match_listings and similar_listings SQL functions; on SQLite they use
// vec_distance_cosine when built with sqlite_vec, or compute the similarity
// in Go otherwise.
//
// # Basic Usage
//
//	store, err := storage.Open(ctx, storage.BackendSQLite, "~/.skillmarket/skillmarket.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	listings, err := store.SearchListings(ctx, storage.ListingFilter{
//	    TitleContains: "guitar",
//	    ListingType:   "Providing",
//	})
package storage
