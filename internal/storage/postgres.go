package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dshills/skillmarket/pkg/types"
)

// PostgresStorage implements the Storage interface on Postgres with the
// pgvector extension. Similarity lookups call the match_listings and
// similar_listings SQL functions installed by the migrations.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to connStr and applies pending migrations
func NewPostgresStorage(ctx context.Context, connStr string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	if err := ApplyPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

// scanPgListing reads one row produced with listingColumns
func scanPgListing(row pgx.Row) (*types.Listing, error) {
	var listing types.Listing
	var listingType string
	err := row.Scan(
		&listing.ID, &listing.Title, &listing.Description, &listing.Category,
		&listingType, &listing.Price, &listing.UserID, &listing.CreatedAt, &listing.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	listing.ListingType = types.ListingType(listingType)
	return &listing, nil
}

func collectPgListings(rows pgx.Rows) ([]*types.Listing, error) {
	defer rows.Close()
	listings := make([]*types.Listing, 0)
	for rows.Next() {
		listing, err := scanPgListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}
	return listings, rows.Err()
}

// Listing operations

func (p *PostgresStorage) CreateListing(ctx context.Context, listing *types.Listing) error {
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = now
	}
	listing.UpdatedAt = now

	_, err := p.pool.Exec(ctx, `
		INSERT INTO listings (id, title, description, category, listing_type, price, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		listing.ID, listing.Title, listing.Description, listing.Category,
		string(listing.ListingType), listing.Price, listing.UserID, listing.CreatedAt, listing.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

func (p *PostgresStorage) UpdateListing(ctx context.Context, listing *types.Listing) error {
	now := time.Now().UTC()
	tag, err := p.pool.Exec(ctx, `
		UPDATE listings
		SET title = $1, description = $2, category = $3, listing_type = $4, price = $5, updated_at = $6
		WHERE id = $7`,
		listing.Title, listing.Description, listing.Category,
		string(listing.ListingType), listing.Price, now, listing.ID)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	listing.UpdatedAt = now
	return nil
}

func (p *PostgresStorage) DeleteListing(ctx context.Context, listingID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, listingID)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStorage) GetListing(ctx context.Context, listingID string) (*types.Listing, error) {
	listing, err := scanPgListing(p.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, listingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return listing, nil
}

func (p *PostgresStorage) GetListingsByIDs(ctx context.Context, listingIDs []string) ([]*types.Listing, error) {
	if len(listingIDs) == 0 {
		return []*types.Listing{}, nil
	}
	rows, err := p.pool.Query(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ANY($1)`, listingIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listings: %w", err)
	}
	found, err := collectPgListings(rows)
	if err != nil {
		return nil, err
	}
	return orderByIDs(found, listingIDs), nil
}

func (p *PostgresStorage) SearchListings(ctx context.Context, filter ListingFilter) ([]*types.Listing, error) {
	query, args, ok := buildListingQuery(postgresDialect, filter)
	if !ok {
		return []*types.Listing{}, nil
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	return collectPgListings(rows)
}

func (p *PostgresStorage) ListListings(ctx context.Context, limit, offset int) ([]*types.Listing, error) {
	var limitArg interface{}
	if limit > 0 {
		limitArg = limit
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limitArg, offset)
	if err != nil {
		return nil, err
	}
	return collectPgListings(rows)
}

// Profile operations

func (p *PostgresStorage) UpsertProfile(ctx context.Context, profile *types.Profile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO profiles (id, username, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username`,
		profile.ID, profile.Username, profile.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetProfile(ctx context.Context, profileID string) (*types.Profile, error) {
	var profile types.Profile
	err := p.pool.QueryRow(ctx, `SELECT id, username, created_at FROM profiles WHERE id = $1`, profileID).
		Scan(&profile.ID, &profile.Username, &profile.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (p *PostgresStorage) FindProfilesByUsername(ctx context.Context, fragment string) ([]*types.Profile, error) {
	query := `SELECT id, username, created_at FROM profiles WHERE ` +
		postgresDialect.contains("username", "$1") + ` ORDER BY username`
	rows, err := p.pool.Query(ctx, query, strings.ToLower(fragment))
	if err != nil {
		return nil, fmt.Errorf("failed to find profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]*types.Profile, 0)
	for rows.Next() {
		var profile types.Profile
		if err := rows.Scan(&profile.ID, &profile.Username, &profile.CreatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, &profile)
	}
	return profiles, rows.Err()
}

// Embedding operations

func (p *PostgresStorage) UpsertListingEmbedding(ctx context.Context, embedding *ListingEmbedding) error {
	now := time.Now().UTC()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO listing_embeddings (listing_id, embedding, dimension, provider, model, content_hash, created_at, updated_at)
		VALUES ($1, $2::vector, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (listing_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			dimension = EXCLUDED.dimension,
			provider = EXCLUDED.provider,
			model = EXCLUDED.model,
			content_hash = EXCLUDED.content_hash,
			updated_at = EXCLUDED.updated_at`,
		embedding.ListingID, formatVector(embedding.Vector), len(embedding.Vector),
		embedding.Provider, embedding.Model, embedding.ContentHash, now)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	embedding.Dimension = len(embedding.Vector)
	if embedding.CreatedAt.IsZero() {
		embedding.CreatedAt = now
	}
	embedding.UpdatedAt = now
	return nil
}

func (p *PostgresStorage) GetListingEmbedding(ctx context.Context, listingID string) (*ListingEmbedding, error) {
	var embedding ListingEmbedding
	var raw string
	err := p.pool.QueryRow(ctx, `
		SELECT listing_id, embedding::text, dimension, provider, model, content_hash, created_at, updated_at
		FROM listing_embeddings WHERE listing_id = $1`, listingID).Scan(
		&embedding.ListingID, &raw, &embedding.Dimension, &embedding.Provider,
		&embedding.Model, &embedding.ContentHash, &embedding.CreatedAt, &embedding.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if embedding.Vector, err = parseVector(raw); err != nil {
		return nil, fmt.Errorf("invalid stored embedding for %s: %w", listingID, err)
	}
	return &embedding, nil
}

// Similarity procedures

func (p *PostgresStorage) MatchListings(ctx context.Context, vector []float32, threshold float64, count int) ([]VectorResult, error) {
	if count <= 0 || len(vector) == 0 {
		return []VectorResult{}, nil
	}
	rows, err := p.pool.Query(ctx, `SELECT id, similarity FROM match_listings($1::vector, $2, $3)`,
		formatVector(vector), threshold, count)
	if err != nil {
		return nil, fmt.Errorf("match_listings failed: %w", err)
	}
	return collectVectorResults(rows)
}

func (p *PostgresStorage) SimilarListings(ctx context.Context, listingID string, threshold float64, count int) ([]VectorResult, error) {
	if count <= 0 {
		return []VectorResult{}, nil
	}
	rows, err := p.pool.Query(ctx, `SELECT id, similarity FROM similar_listings($1, $2, $3)`,
		listingID, threshold, count)
	if err != nil {
		return nil, fmt.Errorf("similar_listings failed: %w", err)
	}
	return collectVectorResults(rows)
}

func collectVectorResults(rows pgx.Rows) ([]VectorResult, error) {
	defer rows.Close()
	results := make([]VectorResult, 0)
	for rows.Next() {
		var r VectorResult
		if err := rows.Scan(&r.ListingID, &r.Similarity); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Chat operations

func (p *PostgresStorage) CreateChatSession(ctx context.Context, session *types.ChatSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	_, err := p.pool.Exec(ctx,
		`INSERT INTO chat_sessions (id, user_id, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		session.ID, session.UserID, session.Name, now)
	if err != nil {
		return fmt.Errorf("failed to create chat session: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetChatSession(ctx context.Context, sessionID string) (*types.ChatSession, error) {
	var session types.ChatSession
	err := p.pool.QueryRow(ctx,
		`SELECT id, user_id, name, created_at, updated_at FROM chat_sessions WHERE id = $1`, sessionID).
		Scan(&session.ID, &session.UserID, &session.Name, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (p *PostgresStorage) ListChatSessions(ctx context.Context, userID string) ([]*types.ChatSession, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, user_id, name, created_at, updated_at
		FROM chat_sessions WHERE user_id = $1
		ORDER BY updated_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]*types.ChatSession, 0)
	for rows.Next() {
		var session types.ChatSession
		if err := rows.Scan(&session.ID, &session.UserID, &session.Name, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

func (p *PostgresStorage) AppendChatMessage(ctx context.Context, message *types.ChatMessage) error {
	now := time.Now().UTC()
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO chat_messages (session_id, sender, text, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
			message.SessionID, string(message.Sender), message.Text, now).Scan(&message.ID)
		if err != nil {
			return fmt.Errorf("failed to append chat message: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE chat_sessions SET updated_at = $1 WHERE id = $2`, now, message.SessionID); err != nil {
			return fmt.Errorf("failed to touch chat session: %w", err)
		}
		message.CreatedAt = now
		return nil
	})
}

func (p *PostgresStorage) ListChatMessages(ctx context.Context, sessionID string, limit int) ([]*types.ChatMessage, error) {
	var limitArg interface{}
	if limit > 0 {
		limitArg = limit
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, sender, text, created_at FROM (
			SELECT id, session_id, sender, text, created_at
			FROM chat_messages WHERE session_id = $1
			ORDER BY id DESC LIMIT $2
		) recent ORDER BY id`, sessionID, limitArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*types.ChatMessage, 0)
	for rows.Next() {
		var m types.ChatMessage
		var sender string
		if err := rows.Scan(&m.ID, &m.SessionID, &sender, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Sender = types.Sender(sender)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// Status operations

func (p *PostgresStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{Backend: "postgres"}

	var sizeBytes int64
	err := p.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM listings),
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM listing_embeddings),
			(SELECT COUNT(*) FROM chat_sessions),
			(SELECT COUNT(*) FROM chat_messages),
			pg_database_size(current_database())`).Scan(
		&status.ListingsCount, &status.ProfilesCount, &status.EmbeddingsCount,
		&status.SessionsCount, &status.MessagesCount, &sizeBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	status.SizeMB = float64(sizeBytes) / (1024 * 1024)

	if version, err := currentPostgresSchemaVersion(ctx, p.pool); err == nil {
		status.SchemaVersion = version.String()
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		VectorExtension:     true,
	}
	return status, nil
}

// formatVector renders v in pgvector text form, e.g. [0.1,0.2]
func formatVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*8 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector parses pgvector text form back into a float32 slice
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("malformed vector %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float32{}, nil
	}
	parts := strings.Split(body, ",")
	v := make([]float32, len(parts))
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, err
		}
		v[i] = float32(f)
	}
	return v, nil
}
