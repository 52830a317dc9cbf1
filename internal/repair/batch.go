package repair

import (
	"context"
	"errors"
	"fmt"
)

// ErrAllChunksFailed is returned by ProcessBatch when no chunk produced a
// valid document. Partial failure is not an error: the batch result simply
// marks the failed chunks.
var ErrAllChunksFailed = errors.New("repair: all chunks failed")

// ChunkStatus records how one chunk fared. Failed chunks contribute nothing
// to the merge but never poison the rest of the batch.
type ChunkStatus struct {
	// Index is the chunk's position in the input slice.
	Index int

	// Done reports whether the chunk produced a valid document.
	Done bool

	// Phase is the terminal phase of the chunk's pipeline run.
	Phase Phase

	// Log is the chunk's combined syntax, normalization, and repair log.
	Log []string

	// Errors is the chunk's final validation error list, nil when Done.
	Errors []ValidationError
}

// BatchResult is the outcome of a batch run: the merged document built from
// all valid chunks plus the per-chunk statuses, ordered by chunk index.
type BatchResult struct {
	// Merged is the merge of every valid chunk's document. Nil when no
	// chunk succeeded.
	Merged map[string]any

	// Chunks holds one status per input chunk, in input order.
	Chunks []ChunkStatus
}

// Succeeded returns the number of chunks that produced a valid document.
func (r BatchResult) Succeeded() int {
	n := 0
	for _, c := range r.Chunks {
		if c.Done {
			n++
		}
	}
	return n
}

// Failed returns the number of unrecoverable chunks.
func (r BatchResult) Failed() int {
	return len(r.Chunks) - r.Succeeded()
}

// MergeFunc combines the valid chunks' documents into one. Implementations
// own de-duplication (signals, levels) and any index-offset adjustments;
// docs arrive in chunk order.
type MergeFunc func(docs []map[string]any) map[string]any

// ProcessBatch runs the pipeline once per raw chunk response and merges the
// valid results. contexts supplies the per-chunk source material for LLM
// repair grounding; it may be shorter than raws, missing entries default to
// empty. Chunk failures are isolated and recorded, never raised; the only
// error condition is every chunk failing ([ErrAllChunksFailed]). Merging is
// by chunk index, so callers may run chunks through separate pipelines
// concurrently and still get deterministic output.
func (p *Pipeline) ProcessBatch(
	ctx context.Context,
	raws []string,
	schema Schema,
	contexts []string,
	merge MergeFunc,
) (BatchResult, error) {
	if merge == nil {
		return BatchResult{}, errors.New("repair: merge func required")
	}

	result := BatchResult{Chunks: make([]ChunkStatus, len(raws))}
	var valid []map[string]any

	for i, raw := range raws {
		sourceContext := ""
		if i < len(contexts) {
			sourceContext = contexts[i]
		}

		out := p.Process(ctx, raw, schema, sourceContext)

		log := make([]string, 0, len(out.SyntaxRepairs)+len(out.Normalizations)+len(out.RepairLog))
		log = append(log, out.SyntaxRepairs...)
		log = append(log, out.Normalizations...)
		log = append(log, out.RepairLog...)

		result.Chunks[i] = ChunkStatus{
			Index:  i,
			Done:   out.Valid,
			Phase:  out.Phase,
			Log:    log,
			Errors: out.Errors,
		}
		if out.Valid {
			valid = append(valid, out.Doc)
		} else {
			p.log.Warn("chunk unrecoverable",
				"chunk", i, "schema", schema.Name(), "errors", len(out.Errors))
		}
	}

	if len(valid) == 0 && len(raws) > 0 {
		return result, fmt.Errorf("%w: %d chunks", ErrAllChunksFailed, len(raws))
	}

	result.Merged = merge(valid)
	return result, nil
}
