package qdrant

// Match is an exact-value payload condition.
type Match struct {
	Value any `json:"value"`
}

// Condition is a single payload filter clause.
type Condition struct {
	Key   string `json:"key"`
	Match *Match `json:"match,omitempty"`
}

// Filter is a metadata filter. Only must-clauses are used by this system.
type Filter struct {
	Must []Condition `json:"must,omitempty"`
}

// MatchCondition builds an exact-match clause.
func MatchCondition(key string, value any) Condition {
	return Condition{Key: key, Match: &Match{Value: value}}
}

// Point is a vector point with its payload. The identifier travels as the
// point id, not inside the payload.
type Point struct {
	ID      any            `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ScoredPoint is a single nearest-neighbor hit.
type ScoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// SearchQuery is a nearest-neighbor search request. The adapter does not
// inject tenant isolation; callers must include the tenant/unit match clauses
// in Filter themselves.
type SearchQuery struct {
	Vector         []float32 `json:"vector"`
	Limit          int       `json:"limit"`
	Filter         *Filter   `json:"filter,omitempty"`
	ScoreThreshold *float64  `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
}
