package leveltype

import (
	"context"
	"fmt"
	"time"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS price_level_patterns (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	original_type   TEXT NOT NULL,
	normalized_type TEXT NOT NULL,
	frequency       INTEGER DEFAULT 1,
	confidence_score REAL DEFAULT 0.5,
	first_seen      TEXT NOT NULL,
	last_seen       TEXT NOT NULL,
	success_count   INTEGER DEFAULT 0,
	UNIQUE(original_type, normalized_type)
);

CREATE TABLE IF NOT EXISTS normalization_history (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	original_type   TEXT NOT NULL,
	normalized_type TEXT NOT NULL,
	context         TEXT,
	confidence      REAL,
	method          TEXT,
	timestamp       TEXT NOT NULL,
	video_id        TEXT
);
`

func (c *Classifier) initSchema() error {
	_, err := c.db.Exec(schemaDDL)
	return err
}

// loadPatterns refreshes the in-memory learned pattern cache. Only patterns
// above 0.5 confidence participate; the highest-confidence mapping wins per
// original label.
func (c *Classifier) loadPatterns(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx,
		`SELECT original_type, normalized_type, confidence_score
		 FROM price_level_patterns
		 WHERE confidence_score > 0.5
		 ORDER BY confidence_score DESC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	patterns := map[string]learnedPattern{}
	for rows.Next() {
		var original, normalized string
		var confidence float64
		if err := rows.Scan(&original, &normalized, &confidence); err != nil {
			return err
		}
		if _, exists := patterns[original]; !exists {
			patterns[original] = learnedPattern{normalized: normalized, confidence: confidence}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.patterns = patterns
	c.mu.Unlock()
	return nil
}

// record appends a history entry and reinforces the pattern table.
func (c *Classifier) record(ctx context.Context, original string, res Result, levelContext, videoID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO normalization_history
		 (original_type, normalized_type, context, confidence, method, timestamp, video_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		original, res.NormalizedType, levelContext, res.Confidence, string(res.Method), now, videoID,
	); err != nil {
		return fmt.Errorf("leveltype: insert history: %w", err)
	}

	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO price_level_patterns
		 (original_type, normalized_type, confidence_score, frequency, first_seen, last_seen)
		 VALUES (?, ?, ?, 1, ?, ?)
		 ON CONFLICT(original_type, normalized_type) DO UPDATE SET
		 frequency = frequency + 1,
		 confidence_score = (confidence_score * frequency + ?) / (frequency + 1),
		 last_seen = ?`,
		original, res.NormalizedType, res.Confidence, now, now, res.Confidence, now,
	); err != nil {
		return fmt.Errorf("leveltype: upsert pattern: %w", err)
	}
	return nil
}

// HistoryEntry is one recorded classification.
type HistoryEntry struct {
	ID             int64
	OriginalType   string
	NormalizedType string
	Context        string
	Confidence     float64
	Method         Method
	Timestamp      time.Time
	VideoID        string
}

// Review returns the most recent classifications within the given
// confidence band, newest first. It is the data source for manual quality
// review and corrections.
func (c *Classifier) Review(ctx context.Context, limit int, minConfidence, maxConfidence float64) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, original_type, normalized_type, COALESCE(context, ''), confidence, method, timestamp, COALESCE(video_id, '')
		 FROM normalization_history
		 WHERE confidence >= ? AND confidence <= ?
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		minConfidence, maxConfidence, limit)
	if err != nil {
		return nil, fmt.Errorf("leveltype: review query: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var method, ts string
		if err := rows.Scan(&e.ID, &e.OriginalType, &e.NormalizedType, &e.Context, &e.Confidence, &method, &ts, &e.VideoID); err != nil {
			return nil, fmt.Errorf("leveltype: scan history: %w", err)
		}
		e.Method = Method(method)
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats summarizes classifier behavior.
type Stats struct {
	// TotalNormalizations counts all recorded classifications.
	TotalNormalizations int

	// ByMethod counts classifications per strategy.
	ByMethod map[Method]int

	// AvgConfidenceByMethod is the mean confidence per strategy.
	AvgConfidenceByMethod map[Method]float64

	// LearnedPatterns counts patterns confident enough to be applied.
	LearnedPatterns int

	// LowConfidenceCount counts classifications below 0.5 confidence,
	// the prime candidates for review.
	LowConfidenceCount int
}

// Stats aggregates classification statistics from the learning database.
func (c *Classifier) Stats(ctx context.Context) (Stats, error) {
	s := Stats{
		ByMethod:              map[Method]int{},
		AvgConfidenceByMethod: map[Method]float64{},
	}

	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM normalization_history`).Scan(&s.TotalNormalizations); err != nil {
		return Stats{}, fmt.Errorf("leveltype: stats: %w", err)
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT method, COUNT(*), AVG(confidence) FROM normalization_history GROUP BY method`)
	if err != nil {
		return Stats{}, fmt.Errorf("leveltype: stats by method: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var method string
		var count int
		var avg float64
		if err := rows.Scan(&method, &count, &avg); err != nil {
			return Stats{}, fmt.Errorf("leveltype: scan stats: %w", err)
		}
		s.ByMethod[Method(method)] = count
		s.AvgConfidenceByMethod[Method(method)] = avg
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_level_patterns WHERE confidence_score > 0.5`).Scan(&s.LearnedPatterns); err != nil {
		return Stats{}, fmt.Errorf("leveltype: stats patterns: %w", err)
	}
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM normalization_history WHERE confidence < 0.5`).Scan(&s.LowConfidenceCount); err != nil {
		return Stats{}, fmt.Errorf("leveltype: stats low confidence: %w", err)
	}
	return s, nil
}

// Correct records a manual correction for a history entry: the original
// label is strongly bound to correctType so future classifications resolve
// through the learned pattern path.
func (c *Classifier) Correct(ctx context.Context, historyID int64, correctType string) error {
	valid := false
	for _, t := range ValidTypes {
		if correctType == t {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("leveltype: %q is not a valid level type", correctType)
	}

	var original string
	err := c.db.QueryRowContext(ctx,
		`SELECT original_type FROM normalization_history WHERE id = ?`, historyID).Scan(&original)
	if err != nil {
		return fmt.Errorf("leveltype: history entry %d: %w", historyID, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO price_level_patterns
		 (original_type, normalized_type, confidence_score, frequency, success_count, first_seen, last_seen)
		 VALUES (?, ?, 0.95, 1, 1, ?, ?)
		 ON CONFLICT(original_type, normalized_type) DO UPDATE SET
		 confidence_score = MIN(0.99, confidence_score + 0.1),
		 success_count = success_count + 1,
		 last_seen = ?`,
		original, correctType, now, now, now,
	); err != nil {
		return fmt.Errorf("leveltype: apply correction: %w", err)
	}

	c.log.Info("level type correction recorded",
		"history_id", historyID, "original", original, "corrected", correctType)
	return c.loadPatterns(ctx)
}
