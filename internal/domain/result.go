package domain

// HybridResult is a single fused search hit. Constructed per query, never
// persisted; merged from at most two contributing partial results keyed by ID.
type HybridResult struct {
	ID            string         `json:"id"`
	Score         float64        `json:"score"`
	SemanticScore float64        `json:"semantic_score"`
	TextScore     float64        `json:"text_score"`
	Document      map[string]any `json:"document"`
}

// HybridPage is a fused, truncated result set.
//
// Total reflects the post-truncation count, not the union size before
// truncation. This mirrors the behavior callers depend on; it is not a true
// count of all matches.
type HybridPage struct {
	Results []HybridResult `json:"results"`
	Total   int            `json:"total"`
}

// SemanticHit is a single vector-engine hit.
type SemanticHit struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}
