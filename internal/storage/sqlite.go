package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/skillmarket/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = types.ErrNotFound
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside a transaction, committing on success
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanListing reads one row produced with listingColumns
func scanListing(row rowScanner) (*types.Listing, error) {
	var listing types.Listing
	var listingType string
	var price sql.NullFloat64
	err := row.Scan(
		&listing.ID, &listing.Title, &listing.Description, &listing.Category,
		&listingType, &price, &listing.UserID, &listing.CreatedAt, &listing.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	listing.ListingType = types.ListingType(listingType)
	if price.Valid {
		p := price.Float64
		listing.Price = &p
	}
	return &listing, nil
}

func collectListings(rows *sql.Rows) ([]*types.Listing, error) {
	listings := make([]*types.Listing, 0)
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}
	return listings, rows.Err()
}

func nullablePrice(price *float64) sql.NullFloat64 {
	if price == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *price, Valid: true}
}

// Listing operations

func (s *SQLiteStorage) CreateListing(ctx context.Context, listing *types.Listing) error {
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = now
	}
	listing.UpdatedAt = now

	query := `
		INSERT INTO listings (id, title, description, category, listing_type, price, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		listing.ID, listing.Title, listing.Description, listing.Category,
		string(listing.ListingType), nullablePrice(listing.Price), listing.UserID,
		listing.CreatedAt.UTC(), listing.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpdateListing(ctx context.Context, listing *types.Listing) error {
	query := `
		UPDATE listings
		SET title = ?, description = ?, category = ?, listing_type = ?, price = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		listing.Title, listing.Description, listing.Category,
		string(listing.ListingType), nullablePrice(listing.Price), now, listing.ID)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	listing.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) DeleteListing(ctx context.Context, listingID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, listingID)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) GetListing(ctx context.Context, listingID string) (*types.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = ?`
	listing, err := scanListing(s.db.QueryRowContext(ctx, query, listingID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// GetListingsByIDs returns the listings that still exist, in the order of listingIDs
func (s *SQLiteStorage) GetListingsByIDs(ctx context.Context, listingIDs []string) ([]*types.Listing, error) {
	if len(listingIDs) == 0 {
		return []*types.Listing{}, nil
	}

	query := `SELECT ` + listingColumns + ` FROM listings WHERE id IN ` + inClause(sqliteDialect, 0, len(listingIDs))
	args := make([]interface{}, len(listingIDs))
	for i, id := range listingIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	found, err := collectListings(rows)
	if err != nil {
		return nil, err
	}
	return orderByIDs(found, listingIDs), nil
}

func (s *SQLiteStorage) SearchListings(ctx context.Context, filter ListingFilter) ([]*types.Listing, error) {
	query, args, ok := buildListingQuery(sqliteDialect, filter)
	if !ok {
		return []*types.Listing{}, nil
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectListings(rows)
}

func (s *SQLiteStorage) ListListings(ctx context.Context, limit, offset int) ([]*types.Listing, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query := `SELECT ` + listingColumns + ` FROM listings ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return collectListings(rows)
}

// Profile operations

func (s *SQLiteStorage) UpsertProfile(ctx context.Context, profile *types.Profile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO profiles (id, username, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username
	`
	if _, err := s.db.ExecContext(ctx, query, profile.ID, profile.Username, profile.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetProfile(ctx context.Context, profileID string) (*types.Profile, error) {
	var profile types.Profile
	err := s.db.QueryRowContext(ctx, `SELECT id, username, created_at FROM profiles WHERE id = ?`, profileID).
		Scan(&profile.ID, &profile.Username, &profile.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindProfilesByUsername returns profiles whose username contains fragment, case-insensitively
func (s *SQLiteStorage) FindProfilesByUsername(ctx context.Context, fragment string) ([]*types.Profile, error) {
	query := `SELECT id, username, created_at FROM profiles WHERE ` +
		sqliteDialect.contains("username", "?") + ` ORDER BY username`
	rows, err := s.db.QueryContext(ctx, query, strings.ToLower(fragment))
	if err != nil {
		return nil, fmt.Errorf("failed to find profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	profiles := make([]*types.Profile, 0)
	for rows.Next() {
		var p types.Profile
		if err := rows.Scan(&p.ID, &p.Username, &p.CreatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

// Embedding operations

func (s *SQLiteStorage) UpsertListingEmbedding(ctx context.Context, embedding *ListingEmbedding) error {
	query := `
		INSERT INTO listing_embeddings (listing_id, vector, dimension, provider, model, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		embedding.ListingID, serializeVector(embedding.Vector), len(embedding.Vector),
		embedding.Provider, embedding.Model, embedding.ContentHash, now, now)
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

func (s *SQLiteStorage) GetListingEmbedding(ctx context.Context, listingID string) (*ListingEmbedding, error) {
	query := `
		SELECT listing_id, vector, dimension, provider, model, content_hash, created_at, updated_at
		FROM listing_embeddings
		WHERE listing_id = ?
	`
	var embedding ListingEmbedding
	var blob []byte
	err := s.db.QueryRowContext(ctx, query, listingID).Scan(
		&embedding.ListingID, &blob, &embedding.Dimension, &embedding.Provider,
		&embedding.Model, &embedding.ContentHash, &embedding.CreatedAt, &embedding.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	embedding.Vector = deserializeVector(blob)
	return &embedding, nil
}

// Similarity procedures

func (s *SQLiteStorage) MatchListings(ctx context.Context, vector []float32, threshold float64, count int) ([]VectorResult, error) {
	return searchVector(ctx, s.db, vector, threshold, count, "")
}

// SimilarListings ranks other listings by closeness to the stored vector of
// listingID. A listing without an embedding has no neighbours.
func (s *SQLiteStorage) SimilarListings(ctx context.Context, listingID string, threshold float64, count int) ([]VectorResult, error) {
	source, err := s.GetListingEmbedding(ctx, listingID)
	if errors.Is(err, ErrNotFound) {
		return []VectorResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	return searchVector(ctx, s.db, source.Vector, threshold, count, listingID)
}

// Chat operations

func (s *SQLiteStorage) CreateChatSession(ctx context.Context, session *types.ChatSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	query := `INSERT INTO chat_sessions (id, user_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, session.ID, session.UserID, session.Name, now, now); err != nil {
		return fmt.Errorf("failed to create chat session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetChatSession(ctx context.Context, sessionID string) (*types.ChatSession, error) {
	var session types.ChatSession
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at, updated_at FROM chat_sessions WHERE id = ?`, sessionID).
		Scan(&session.ID, &session.UserID, &session.Name, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SQLiteStorage) ListChatSessions(ctx context.Context, userID string) ([]*types.ChatSession, error) {
	query := `
		SELECT id, user_id, name, created_at, updated_at
		FROM chat_sessions
		WHERE user_id = ?
		ORDER BY updated_at DESC, id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

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

// AppendChatMessage stores a message and bumps the session's update time
func (s *SQLiteStorage) AppendChatMessage(ctx context.Context, message *types.ChatMessage) error {
	now := time.Now().UTC()
	return s.withTx(ctx, func(q querier) error {
		result, err := q.ExecContext(ctx,
			`INSERT INTO chat_messages (session_id, sender, text, created_at) VALUES (?, ?, ?, ?)`,
			message.SessionID, string(message.Sender), message.Text, now)
		if err != nil {
			return fmt.Errorf("failed to append chat message: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := q.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, now, message.SessionID); err != nil {
			return fmt.Errorf("failed to touch chat session: %w", err)
		}

		message.ID = id
		message.CreatedAt = now
		return nil
	})
}

// ListChatMessages returns the most recent limit messages of a session in
// insertion order. A non-positive limit returns every message.
func (s *SQLiteStorage) ListChatMessages(ctx context.Context, sessionID string, limit int) ([]*types.ChatMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, session_id, sender, text, created_at FROM (
			SELECT id, session_id, sender, text, created_at
			FROM chat_messages
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

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

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{Backend: BackendSQLite, BuildMode: BuildMode}

	counts := []struct {
		table string
		dest  *int
	}{
		{"listings", &status.ListingsCount},
		{"profiles", &status.ProfilesCount},
		{"listing_embeddings", &status.EmbeddingsCount},
		{"chat_sessions", &status.SessionsCount},
		{"chat_messages", &status.MessagesCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	if version, err := currentSchemaVersion(ctx, s.db); err == nil {
		status.SchemaVersion = version.String()
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		VectorExtension:     VectorExtensionAvailable,
	}

	return status, nil
}

// orderByIDs arranges listings to follow ids, dropping ids that were not found
func orderByIDs(listings []*types.Listing, ids []string) []*types.Listing {
	byID := make(map[string]*types.Listing, len(listings))
	for _, l := range listings {
		byID[l.ID] = l
	}
	ordered := make([]*types.Listing, 0, len(listings))
	for _, id := range ids {
		if l, ok := byID[id]; ok {
			ordered = append(ordered, l)
			delete(byID, id)
		}
	}
	return ordered
}
