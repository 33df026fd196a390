package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/skillmarket/internal/embedder"
	"github.com/dshills/skillmarket/internal/storage"
	"github.com/dshills/skillmarket/pkg/types"
)

var (
	// ErrIndexingInProgress is returned when a reindex is already running
	ErrIndexingInProgress = errors.New("indexing already in progress")
	// ErrQueueFull is returned by Enqueue when the task queue has no room
	ErrQueueFull = errors.New("indexing queue is full")
	// ErrStopped is returned by Enqueue after Stop
	ErrStopped = errors.New("indexer stopped")
)

// Task asks for one listing's embedding to be refreshed
type Task struct {
	ListingID string
}

// Outcome is the result of indexing one listing
type Outcome int

const (
	OutcomeIndexed Outcome = iota
	OutcomeSkipped         // content unchanged or listing gone
)

// Config contains configuration for the indexer
type Config struct {
	Workers   int // Concurrent workers (default: runtime.NumCPU())
	QueueSize int // Pending task capacity (default: 256)
	BatchSize int // Listings embedded per provider call during reindex (default: 20)
}

// Statistics contains statistics about a reindex run
type Statistics struct {
	ListingsIndexed int
	ListingsSkipped int
	ListingsFailed  int
	Duration        time.Duration
	ErrorMessages   []string
}

// Counters are the running totals across queued tasks and reindex runs
type Counters struct {
	Indexed int64
	Skipped int64
	Failed  int64
	Pending int
}

// Indexer keeps listing embeddings in step with listing content
type Indexer struct {
	storage  storage.Storage
	embedder embedder.Embedder

	workers   int
	batchSize int

	queue   chan Task
	wg      sync.WaitGroup
	mu      sync.RWMutex // guards closed against concurrent Enqueue and Stop
	closed  bool
	started bool

	lock IndexLock

	indexed atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// New creates a new Indexer instance
func New(store storage.Storage, emb embedder.Embedder, cfg Config) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.BatchSize > embedder.MaxBatchSize {
		cfg.BatchSize = embedder.MaxBatchSize
	}
	return &Indexer{
		storage:   store,
		embedder:  emb,
		workers:   cfg.Workers,
		batchSize: cfg.BatchSize,
		queue:     make(chan Task, cfg.QueueSize),
	}
}

// Start launches the workers that drain the task queue. They run until Stop
// is called or ctx is done.
func (idx *Indexer) Start(ctx context.Context) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.started || idx.closed {
		return
	}
	idx.started = true

	for i := 0; i < idx.workers; i++ {
		idx.wg.Add(1)
		go idx.worker(ctx)
	}
}

func (idx *Indexer) worker(ctx context.Context) {
	defer idx.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-idx.queue:
			if !ok {
				return
			}
			if _, err := idx.IndexListing(ctx, task.ListingID); err != nil {
				log.Printf("WARN: failed to index listing %s: %v", task.ListingID, err)
			}
		}
	}
}

// Enqueue submits a task without blocking. The listing write that triggered
// it has already succeeded; a rejected task only delays its embedding until
// the next reindex.
func (idx *Indexer) Enqueue(task Task) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return ErrStopped
	}
	select {
	case idx.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for the workers to finish pending tasks
func (idx *Indexer) Stop() {
	idx.mu.Lock()
	if idx.closed {
		idx.mu.Unlock()
		return
	}
	idx.closed = true
	close(idx.queue)
	idx.mu.Unlock()

	idx.wg.Wait()
}

// Stats returns the running totals
func (idx *Indexer) Stats() Counters {
	return Counters{
		Indexed: idx.indexed.Load(),
		Skipped: idx.skipped.Load(),
		Failed:  idx.failed.Load(),
		Pending: len(idx.queue),
	}
}

// IndexListing embeds one listing unless its stored embedding already
// matches the current content and model.
func (idx *Indexer) IndexListing(ctx context.Context, listingID string) (Outcome, error) {
	listing, err := idx.storage.GetListing(ctx, listingID)
	if errors.Is(err, storage.ErrNotFound) {
		idx.skipped.Add(1)
		return OutcomeSkipped, nil
	}
	if err != nil {
		idx.failed.Add(1)
		return 0, fmt.Errorf("failed to load listing: %w", err)
	}

	text := listing.EmbeddingText()
	hash := embedder.ComputeHash(text)
	if idx.unchanged(ctx, listing.ID, hash) {
		idx.skipped.Add(1)
		return OutcomeSkipped, nil
	}

	emb, err := idx.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
	if err != nil {
		idx.failed.Add(1)
		return 0, fmt.Errorf("failed to embed listing: %w", err)
	}

	if err := idx.store(ctx, listing.ID, hash, emb); err != nil {
		idx.failed.Add(1)
		return 0, err
	}
	idx.indexed.Add(1)
	return OutcomeIndexed, nil
}

// unchanged reports whether the stored embedding was computed from the same
// text with the current model
func (idx *Indexer) unchanged(ctx context.Context, listingID, hash string) bool {
	existing, err := idx.storage.GetListingEmbedding(ctx, listingID)
	if err != nil {
		return false
	}
	return existing.ContentHash == hash &&
		existing.Provider == idx.embedder.Provider() &&
		existing.Model == idx.embedder.Model()
}

func (idx *Indexer) store(ctx context.Context, listingID, hash string, emb *embedder.Embedding) error {
	if err := idx.storage.UpsertListingEmbedding(ctx, &storage.ListingEmbedding{
		ListingID:   listingID,
		Vector:      emb.Vector,
		Dimension:   len(emb.Vector),
		Provider:    idx.embedder.Provider(),
		Model:       idx.embedder.Model(),
		ContentHash: hash,
	}); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// ReindexAll embeds every listing whose content changed since it was last
// embedded, or every listing when force is set. Only one run may be active.
func (idx *Indexer) ReindexAll(ctx context.Context, force bool) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	listings, err := idx.allListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}

	var indexed, skipped, failed int32
	var mu sync.Mutex // Protect stats.ErrorMessages
	recordErr := func(msg string) {
		mu.Lock()
		stats.ErrorMessages = append(stats.ErrorMessages, msg)
		mu.Unlock()
	}

	// Use errgroup for concurrent batches, bounded by a semaphore
	semaphore := make(chan struct{}, idx.workers)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < len(listings); i += idx.batchSize {
		end := i + idx.batchSize
		if end > len(listings) {
			end = len(listings)
		}
		batch := listings[i:end]

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			n, s, f := idx.indexBatch(gctx, batch, force, recordErr)
			atomic.AddInt32(&indexed, int32(n))
			atomic.AddInt32(&skipped, int32(s))
			atomic.AddInt32(&failed, int32(f))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.ListingsIndexed = int(indexed)
	stats.ListingsSkipped = int(skipped)
	stats.ListingsFailed = int(failed)
	stats.Duration = time.Since(startTime)

	idx.indexed.Add(int64(indexed))
	idx.skipped.Add(int64(skipped))
	idx.failed.Add(int64(failed))

	log.Printf("reindex complete: %d indexed, %d skipped, %d failed in %s",
		stats.ListingsIndexed, stats.ListingsSkipped, stats.ListingsFailed, stats.Duration)
	return stats, nil
}

// indexBatch embeds the changed listings of one batch in a single provider call
func (idx *Indexer) indexBatch(ctx context.Context, batch []*types.Listing, force bool, recordErr func(string)) (indexed, skipped, failed int) {
	var pending []*types.Listing
	var texts, hashes []string

	for _, l := range batch {
		text := l.EmbeddingText()
		hash := embedder.ComputeHash(text)
		if !force && idx.unchanged(ctx, l.ID, hash) {
			skipped++
			continue
		}
		pending = append(pending, l)
		texts = append(texts, text)
		hashes = append(hashes, hash)
	}
	if len(pending) == 0 {
		return indexed, skipped, failed
	}

	resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		recordErr(fmt.Sprintf("batch of %d listings: %v", len(pending), err))
		return indexed, skipped, failed + len(pending)
	}

	for i, l := range pending {
		if i >= len(resp.Embeddings) {
			recordErr(fmt.Sprintf("%s: no embedding returned", l.ID))
			failed++
			continue
		}
		if err := idx.store(ctx, l.ID, hashes[i], resp.Embeddings[i]); err != nil {
			recordErr(fmt.Sprintf("%s: %v", l.ID, err))
			failed++
			continue
		}
		indexed++
	}
	return indexed, skipped, failed
}

// allListings pages through the store so no rows stay open while embedding
func (idx *Indexer) allListings(ctx context.Context) ([]*types.Listing, error) {
	const pageSize = 500
	var all []*types.Listing
	for offset := 0; ; offset += pageSize {
		page, err := idx.storage.ListListings(ctx, pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}
