// Package indexer keeps listing embeddings in step with listing content.
//
// # Basic Usage
//
//	idx := indexer.New(store, emb, indexer.Config{Workers: 4})
//	idx.Start(ctx)
//	defer idx.Stop()
//
//	// after a listing is created or updated
//	if err := idx.Enqueue(indexer.Task{ListingID: listing.ID}); err != nil {
//	    log.Printf("WARN: %v", err)
//	}
//
// # Queued Tasks
//
// Listing writes enqueue a Task on a bounded queue drained by a fixed pool of
// workers. Enqueue never blocks: a full queue returns ErrQueueFull and the
// listing is picked up by the next ReindexAll instead.
//
// # Incremental Indexing
//
// Each listing is embedded from its title, category, type and description.
// The SHA-256 of that text is stored with the vector, and a listing whose
// hash, provider and model are unchanged is skipped.
//
// # Full Reindex
//
// ReindexAll walks every listing in batches, one provider call per batch,
// with at most Workers batches in flight. A non-blocking IndexLock rejects
// overlapping runs with ErrIndexingInProgress. Per-batch failures are counted
// in Statistics and do not stop the run.
package indexer
