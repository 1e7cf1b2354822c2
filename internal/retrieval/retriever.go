// Package retrieval turns an event input into the single best matching
// knowledge-base template: query construction, metadata filter derivation,
// vector search, and top-1 selection with a similarity floor.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"taskrag/internal/embedding"
	"taskrag/internal/index"
	"taskrag/internal/logging"
	"taskrag/internal/types"
)

// Filter keys, in their default precedence order.
const (
	FilterVIP       = "vip"
	FilterSponsor   = "sponsor"
	FilterOutdoor   = "outdoor"
	FilterEventType = "event_type"
)

// DefaultPrecedence is the order filter clauses are considered. Only the
// first clause whose event attribute is set gets applied; clauses are never
// conjoined.
var DefaultPrecedence = []string{FilterVIP, FilterSponsor, FilterOutdoor, FilterEventType}

// Options configures a Retriever.
type Options struct {
	// TopK is how many candidates to request from the index before top-1
	// selection.
	TopK int
	// MinSimilarity is the cosine similarity floor for the top candidate.
	// Falling below it only logs and falls back to the best candidate
	// anyway; it never empties a non-empty result.
	MinSimilarity float64
	// Precedence overrides DefaultPrecedence when non-empty.
	Precedence []string
}

// Retriever queries the vector index for the best template document.
type Retriever struct {
	engine     embedding.EmbeddingEngine
	index      *index.VectorIndex
	topK       int
	minSim     float64
	precedence []string
}

// New creates a Retriever over an embedding engine and vector index.
func New(engine embedding.EmbeddingEngine, idx *index.VectorIndex, opts Options) *Retriever {
	topK := opts.TopK
	if topK <= 0 {
		topK = 12
	}
	minSim := opts.MinSimilarity
	if minSim <= 0 {
		minSim = 0.30
	}
	precedence := opts.Precedence
	if len(precedence) == 0 {
		precedence = DefaultPrecedence
	}
	return &Retriever{
		engine:     engine,
		index:      idx,
		topK:       topK,
		minSim:     minSim,
		precedence: precedence,
	}
}

// Retrieve returns the single best matching document for the event, or nil
// when the event has no query text or the index holds nothing matching.
func (r *Retriever) Retrieve(ctx context.Context, event types.EventInput) (*types.RetrievedDocument, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Retrieve")
	defer timer.Stop()

	query := event.QueryText()
	if query == "" {
		logging.RetrievalDebug("Empty query text, skipping index lookup")
		return nil, nil
	}

	queryVec, err := embedding.EmbedForTask(ctx, r.engine, query, embedding.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	filter := r.buildFilter(event)
	if filter != nil {
		logging.RetrievalDebug("Applying filter %s=%v", filter.Key, filter.Value)
	}

	candidates, err := r.index.Query(ctx, queryVec, r.topK, filter)
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}
	if len(candidates) == 0 {
		logging.Retrieval("No candidates for query %q", truncate(query, 80))
		return nil, nil
	}

	best := candidates[0]
	if best.Similarity < r.minSim {
		// The floor only re-ranks; with one real candidate it is a warning,
		// never an exclusion.
		logging.Retrieval("Top candidate %s below similarity floor (%.3f < %.3f), using it anyway",
			best.DocID, best.Similarity, r.minSim)
	}

	meta := make(map[string]interface{}, len(best.Metadata)+2)
	for k, v := range best.Metadata {
		meta[k] = v
	}
	meta["similarity"] = best.Similarity
	meta["distance"] = best.Distance

	logging.Retrieval("Selected document %s (similarity=%.3f) from %d candidates",
		best.DocID, best.Similarity, len(candidates))

	return &types.RetrievedDocument{
		DocID:      best.DocID,
		Text:       best.Content,
		Metadata:   meta,
		Similarity: best.Similarity,
		Distance:   best.Distance,
	}, nil
}

// buildFilter derives at most one metadata equality clause from the event,
// walking the configured precedence order. First match wins.
func (r *Retriever) buildFilter(event types.EventInput) *index.Filter {
	for _, key := range r.precedence {
		switch key {
		case FilterVIP:
			if types.FlagSet(event.HasVIP) {
				return &index.Filter{Key: "tag_vip", Value: true}
			}
		case FilterSponsor:
			if types.FlagSet(event.HasSponsor) {
				return &index.Filter{Key: "tag_sponsor", Value: true}
			}
		case FilterOutdoor:
			if types.FlagSet(event.Outdoor) {
				return &index.Filter{Key: "tag_outdoor", Value: true}
			}
		case FilterEventType:
			if guess := strings.TrimSpace(event.EventTypeGuess); guess != "" {
				return &index.Filter{Key: "event_type_primary_lower", Value: strings.ToLower(guess)}
			}
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
