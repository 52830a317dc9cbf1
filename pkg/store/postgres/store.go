package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/tickerlens/tickerlens/internal/analysis"
	"github.com/tickerlens/tickerlens/internal/transcript"
)

// Record is one persisted video analysis: the validated intelligence document
// plus transcript and processing metadata.
type Record struct {
	VideoID      string
	Intelligence analysis.Intelligence

	TranscriptSource   transcript.Source
	TranscriptLanguage string
	Duration           time.Duration

	Processing ProcessingInfo

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProcessingInfo captures how the analysis was produced. It is stored as JSONB
// alongside the intelligence document.
type ProcessingInfo struct {
	Model     string `json:"model"`
	Chunks    int    `json:"chunks"`
	Succeeded int    `json:"succeeded"`
	Repaired  int    `json:"repaired"`
	Failed    int    `json:"failed"`
}

// RelatedVideo is a similarity-search hit from [Store.Related]. Distance is the
// cosine distance between transcript embeddings; smaller means more similar.
type RelatedVideo struct {
	VideoID          string
	ContentType      string
	ExecutiveSummary string
	Distance         float64
}

// ListFilter narrows [Store.List]. Zero-value fields are ignored.
type ListFilter struct {
	ContentType string
	Source      transcript.Source
	Since       time.Time
	Until       time.Time

	// Limit caps the number of returned records. Defaults to 50.
	Limit int
}

// Stats summarizes the store contents for the stats endpoints.
type Stats struct {
	Total         int
	Embedded      int
	ByContentType map[string]int
}

const defaultListLimit = 50

// Store persists video analyses in PostgreSQL. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure the schema exists.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce the vectors passed to [Store.Save].
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that the embedding
	// column can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the database connection is alive. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// Save upserts a video analysis. embedding may be nil when no embedding
// provider is configured; such records are excluded from [Store.Related].
// Re-saving an existing video replaces the analysis but preserves created_at.
func (s *Store) Save(ctx context.Context, rec Record, embedding []float32) error {
	const q = `
		INSERT INTO video_analyses
		    (video_id, intelligence, transcript_source, transcript_language,
		     duration_seconds, processing, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (video_id) DO UPDATE SET
		    intelligence        = EXCLUDED.intelligence,
		    transcript_source   = EXCLUDED.transcript_source,
		    transcript_language = EXCLUDED.transcript_language,
		    duration_seconds    = EXCLUDED.duration_seconds,
		    processing          = EXCLUDED.processing,
		    embedding           = EXCLUDED.embedding,
		    updated_at          = now()`

	var vec any
	if embedding != nil {
		vec = pgvector.NewVector(embedding)
	}

	_, err := s.pool.Exec(ctx, q,
		rec.VideoID,
		rec.Intelligence,
		string(rec.TranscriptSource),
		rec.TranscriptLanguage,
		rec.Duration.Seconds(),
		rec.Processing,
		vec,
	)
	if err != nil {
		return fmt.Errorf("postgres store: save %s: %w", rec.VideoID, err)
	}
	return nil
}

// Get returns the analysis for videoID, or (nil, nil) if none is stored.
func (s *Store) Get(ctx context.Context, videoID string) (*Record, error) {
	const q = `
		SELECT video_id, intelligence, transcript_source, transcript_language,
		       duration_seconds, processing, created_at, updated_at
		FROM   video_analyses
		WHERE  video_id = $1`

	rec, err := scanRecord(s.pool.QueryRow(ctx, q, videoID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get %s: %w", videoID, err)
	}
	return &rec, nil
}

// List returns stored analyses matching filter, most recently updated first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.ContentType != "" {
		conditions = append(conditions, "intelligence->>'content_type' = "+next(filter.ContentType))
	}
	if filter.Source != "" {
		conditions = append(conditions, "transcript_source = "+next(string(filter.Source)))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "updated_at > "+next(filter.Since))
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "updated_at < "+next(filter.Until))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limitArg := next(limit)

	q := fmt.Sprintf(`
		SELECT video_id, intelligence, transcript_source, transcript_language,
		       duration_seconds, processing, created_at, updated_at
		FROM   video_analyses
		%s
		ORDER  BY updated_at DESC
		LIMIT  %s`, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Related finds the topK stored videos whose transcript embeddings are closest
// (cosine distance) to the embedding stored for videoID. The video itself and
// records saved without an embedding are excluded. Returns an empty slice when
// videoID is unknown or has no embedding.
func (s *Store) Related(ctx context.Context, videoID string, topK int) ([]RelatedVideo, error) {
	const q = `
		SELECT v.video_id,
		       v.intelligence->>'content_type',
		       v.intelligence->>'executive_summary',
		       v.embedding <=> t.embedding AS distance
		FROM   video_analyses v
		JOIN   video_analyses t ON t.video_id = $1
		WHERE  v.video_id <> $1
		  AND  v.embedding IS NOT NULL
		  AND  t.embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, videoID, topK)
	if err != nil {
		return nil, fmt.Errorf("postgres store: related %s: %w", videoID, err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RelatedVideo, error) {
		var rv RelatedVideo
		err := row.Scan(&rv.VideoID, &rv.ContentType, &rv.ExecutiveSummary, &rv.Distance)
		return rv, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if results == nil {
		results = []RelatedVideo{}
	}
	return results, nil
}

// Stats returns aggregate counts over the stored analyses.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByContentType: map[string]int{}}

	const totals = `
		SELECT count(*), count(embedding)
		FROM   video_analyses`
	if err := s.pool.QueryRow(ctx, totals).Scan(&stats.Total, &stats.Embedded); err != nil {
		return Stats{}, fmt.Errorf("postgres store: stats: %w", err)
	}

	const byType = `
		SELECT intelligence->>'content_type', count(*)
		FROM   video_analyses
		GROUP  BY 1`
	rows, err := s.pool.Query(ctx, byType)
	if err != nil {
		return Stats{}, fmt.Errorf("postgres store: stats by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ct string
			n  int
		)
		if err := rows.Scan(&ct, &n); err != nil {
			return Stats{}, fmt.Errorf("postgres store: stats by type: %w", err)
		}
		stats.ByContentType[ct] = n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("postgres store: stats by type: %w", err)
	}
	return stats, nil
}

// scanRecord reads the record columns shared by Get and List.
func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec     Record
		source  string
		seconds float64
	)
	err := row.Scan(
		&rec.VideoID,
		&rec.Intelligence,
		&source,
		&rec.TranscriptLanguage,
		&seconds,
		&rec.Processing,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	rec.TranscriptSource = transcript.Source(source)
	rec.Duration = time.Duration(seconds * float64(time.Second))
	return rec, nil
}
