package search

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/kailas-cloud/crmdex/internal/domain"
)

// textMatchScore is the flat relevance substituted for any text hit. The text
// engine's relevance signal is not normalized to the 0..1 cosine scale, so a
// fixed assumed-relevance constant stands in for it. This is a known
// approximation; replacing it with a different heuristic changes ranking
// semantics and must not happen silently.
const textMatchScore = 0.8

// normalizeWeights scales the two weights to sum to 1, so callers may pass
// any positive scale. Negative weights are rejected; both zero falls back to
// the service defaults, since a 0/0 request is indistinguishable from an
// unset one.
func normalizeWeights(semantic, text float64, defaults Defaults) (wSem, wText float64, err error) {
	if semantic < 0 || text < 0 {
		return 0, 0, fmt.Errorf("weights must be non-negative: %w", domain.ErrValidation)
	}
	if semantic == 0 && text == 0 {
		semantic, text = defaults.SemanticWeight, defaults.TextWeight
	}
	total := semantic + text
	return semantic / total, text / total, nil
}

// fuse merges the two ranked lists by document identity. Semantic hits seed
// the candidate set with their raw cosine score; text hits either mark an
// existing candidate as text-matched or insert a text-only candidate.
// Final score = semantic*wSem + text*wText. Ties keep insertion order:
// semantic-seeded candidates before text-only insertions.
func fuse(
	semHits []domain.SemanticHit, textHits []map[string]any,
	wSem, wText float64, limit int,
) domain.HybridPage {
	merged := make(map[string]*domain.HybridResult, len(semHits)+len(textHits))
	order := make([]string, 0, len(semHits)+len(textHits))

	for _, h := range semHits {
		if _, ok := merged[h.ID]; ok {
			continue
		}
		merged[h.ID] = &domain.HybridResult{
			ID:            h.ID,
			SemanticScore: h.Score,
			Document:      h.Payload,
		}
		order = append(order, h.ID)
	}

	for _, hit := range textHits {
		id := hitID(hit)
		if id == "" {
			continue
		}
		if entry, ok := merged[id]; ok {
			entry.TextScore = textMatchScore
			// The text document carries the full projected fields; prefer it
			// over the vector payload.
			entry.Document = hit
			continue
		}
		merged[id] = &domain.HybridResult{
			ID:        id,
			TextScore: textMatchScore,
			Document:  hit,
		}
		order = append(order, id)
	}

	results := make([]domain.HybridResult, 0, len(order))
	for _, id := range order {
		entry := merged[id]
		entry.Score = entry.SemanticScore*wSem + entry.TextScore*wText
		results = append(results, *entry)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}

	// Total is the truncated count, not the union size. Callers depend on
	// this shape.
	return domain.HybridPage{Results: results, Total: len(results)}
}

// hitID extracts the string identifier of a text hit.
func hitID(hit map[string]any) string {
	switch v := hit["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// pointID renders a vector point id as a string.
func pointID(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
