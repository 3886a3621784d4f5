package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/libris-ai/libris/internal/rag"
)

// Postgres is the pgvector-backed store. Upserts run in a transaction
// that locks the source row, so concurrent re-ingestion of the same
// source serializes instead of interleaving.
type Postgres struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

// NewPool opens a pgx pool with pgvector types registered on every
// connection.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", rag.ErrStoreUnavailable, err)
	}
	return pool, nil
}

// NewPostgres wraps an existing pool. The caller owns the pool's
// lifecycle.
func NewPostgres(pool *pgxpool.Pool, dim int, logger *slog.Logger) (*Postgres, error) {
	if pool == nil {
		return nil, errors.New("postgres pool is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, dim: dim, logger: logger}, nil
}

// RegisterSource creates or updates source metadata.
func (s *Postgres) RegisterSource(ctx context.Context, meta rag.SourceMetadata) error {
	if err := validateMeta(meta); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sources (source_id, display_name, source_type, reference_link)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			source_type = EXCLUDED.source_type,
			reference_link = EXCLUDED.reference_link,
			updated_at = now()`,
		meta.SourceID, meta.DisplayName, string(meta.Type), meta.ReferenceLink,
	)
	if err != nil {
		return fmt.Errorf("registering source %q: %w", meta.SourceID, storeErr(err))
	}
	return nil
}

// Source returns metadata for one source.
func (s *Postgres) Source(ctx context.Context, sourceID string) (rag.SourceMetadata, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT source_id, display_name, source_type, reference_link, created_at, updated_at
		FROM sources
		WHERE source_id = $1`,
		sourceID,
	)

	meta, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return rag.SourceMetadata{}, fmt.Errorf("%w: %q", rag.ErrSourceNotFound, sourceID)
	}
	if err != nil {
		return rag.SourceMetadata{}, fmt.Errorf("loading source %q: %w", sourceID, storeErr(err))
	}
	return meta, nil
}

// Sources lists all registered sources ordered by source id.
func (s *Postgres) Sources(ctx context.Context) ([]rag.SourceMetadata, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source_id, display_name, source_type, reference_link, created_at, updated_at
		FROM sources
		ORDER BY source_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", storeErr(err))
	}
	defer rows.Close()

	var out []rag.SourceMetadata
	for rows.Next() {
		meta, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sources: %w", storeErr(err))
	}
	return out, nil
}

func scanSource(row pgx.Row) (rag.SourceMetadata, error) {
	var (
		meta    rag.SourceMetadata
		srcType string
		refLink *string
	)
	err := row.Scan(&meta.SourceID, &meta.DisplayName, &srcType, &refLink, &meta.CreatedAt, &meta.UpdatedAt)
	if err != nil {
		return rag.SourceMetadata{}, err
	}
	meta.Type = rag.SourceType(srcType)
	if refLink != nil {
		meta.ReferenceLink = *refLink
	}
	return meta, nil
}

// UpsertChunks atomically replaces a source's chunk set.
func (s *Postgres) UpsertChunks(ctx context.Context, sourceID string, chunks []rag.Chunk) error {
	for _, c := range chunks {
		if err := checkDimension(c.Embedding, s.dim); err != nil {
			return err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", storeErr(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// Lock the source row so concurrent upserts of the same source
	// serialize.
	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT true FROM sources WHERE source_id = $1 FOR UPDATE`, sourceID,
	).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %q", rag.ErrSourceNotFound, sourceID)
	}
	if err != nil {
		return fmt.Errorf("locking source %q: %w", sourceID, storeErr(err))
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("clearing chunks for source %q: %w", sourceID, storeErr(err))
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO chunks (chunk_id, source_id, ordinal_index, content, embedding, token_count)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.SourceID, c.Ordinal, c.Content, pgvector.NewVector(c.Embedding), c.TokenCount,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting %d chunks for source %q: %w", len(chunks), sourceID, storeErr(err))
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sources SET updated_at = now() WHERE source_id = $1`, sourceID,
	); err != nil {
		return fmt.Errorf("touching source %q: %w", sourceID, storeErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing upsert for source %q: %w", sourceID, storeErr(err))
	}

	s.logger.Debug("upserted chunks", "source_id", sourceID, "chunks", len(chunks))
	return nil
}

// DeleteSource removes a source; chunks cascade via the foreign key.
func (s *Postgres) DeleteSource(ctx context.Context, sourceID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sources WHERE source_id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("deleting source %q: %w", sourceID, storeErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", rag.ErrSourceNotFound, sourceID)
	}

	s.logger.Debug("deleted source", "source_id", sourceID)
	return nil
}

// Search performs nearest-neighbor search using pgvector's cosine
// distance. Similarity is clamped to zero in SQL so the ORDER BY
// matches the exported ranking contract exactly, ties and all.
func (s *Postgres) Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]rag.Candidate, error) {
	if err := checkDimension(embedding, s.dim); err != nil {
		return nil, err
	}
	if opts.K <= 0 {
		return nil, fmt.Errorf("search k must be positive, got %d", opts.K)
	}

	query := `
		SELECT c.chunk_id, c.source_id, s.display_name, s.source_type, c.ordinal_index, c.content,
		       GREATEST(1 - (c.embedding <=> $1), 0)::float8 AS similarity
		FROM chunks c
		JOIN sources s ON s.source_id = c.source_id
		WHERE GREATEST(1 - (c.embedding <=> $1), 0) >= $2`
	args := []any{pgvector.NewVector(embedding), opts.MinSimilarity}

	if len(opts.Sources) > 0 {
		query += ` AND c.source_id = ANY($3)`
		args = append(args, opts.Sources)
	}
	query += `
		ORDER BY similarity DESC, c.ordinal_index ASC, c.source_id ASC
		LIMIT ` + fmt.Sprintf("$%d", len(args)+1)
	args = append(args, opts.K)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", storeErr(err))
	}
	defer rows.Close()

	var candidates []rag.Candidate
	for rows.Next() {
		var (
			c       rag.Candidate
			srcType string
		)
		if err := rows.Scan(&c.ChunkID, &c.SourceID, &c.SourceName, &srcType, &c.Ordinal, &c.Content, &c.Similarity); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		c.SourceType = rag.SourceType(srcType)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searching chunks: %w", storeErr(err))
	}
	return candidates, nil
}

// Count returns the number of stored chunks.
func (s *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", storeErr(err))
	}
	return n, nil
}

// storeErr maps connection-level failures onto the retryable store
// sentinel so callers can classify via errors.Is.
func storeErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", rag.ErrStoreUnavailable, err)
}
