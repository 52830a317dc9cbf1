// Package postgres provides the PostgreSQL-backed store for validated video
// analyses.
//
// Each analyzed video occupies one row in video_analyses: the validated
// intelligence document as JSONB, transcript and processing metadata, and an
// optional transcript embedding used for related-video lookup. The pgvector
// extension must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Save(ctx, record, embedding)
//	rec, _ := store.Get(ctx, "dQw4w9WgXcQ")
//	related, _ := store.Related(ctx, "dQw4w9WgXcQ", 5)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlVideoAnalyses returns the analyses DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlVideoAnalyses(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS video_analyses (
    video_id             TEXT              PRIMARY KEY,
    intelligence         JSONB             NOT NULL,
    transcript_source    TEXT              NOT NULL DEFAULT '',
    transcript_language  TEXT              NOT NULL DEFAULT '',
    duration_seconds     DOUBLE PRECISION  NOT NULL DEFAULT 0,
    processing           JSONB             NOT NULL DEFAULT '{}',
    embedding            vector(%d),
    created_at           TIMESTAMPTZ       NOT NULL DEFAULT now(),
    updated_at           TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_video_analyses_content_type
    ON video_analyses ((intelligence->>'content_type'));

CREATE INDEX IF NOT EXISTS idx_video_analyses_updated_at
    ON video_analyses (updated_at);

CREATE INDEX IF NOT EXISTS idx_video_analyses_embedding
    ON video_analyses USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions exist.
// It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS)
// and safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small). Changing this
// value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlVideoAnalyses(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
