// Package search orchestrates hybrid, text-only, and semantic-only search
// across the two engines.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/domain"
	"github.com/kailas-cloud/crmdex/internal/engine/qdrant"
	"github.com/kailas-cloud/crmdex/internal/engine/typesense"
	"github.com/kailas-cloud/crmdex/internal/metrics"
)

// Default fusion weights and result limit.
const (
	DefaultSemanticWeight = 0.7
	DefaultTextWeight     = 0.3
	DefaultLimit          = 10
)

// Service fuses text and vector search results with weighted scoring.
type Service struct {
	reg      Registry
	text     TextEngine
	vector   VectorEngine
	emb      EmbedderResolver
	logger   *zap.Logger
	defaults Defaults
}

// Defaults are the fallback weights and limit applied when a request leaves
// them unset.
type Defaults struct {
	SemanticWeight float64
	TextWeight     float64
	Limit          int
}

// New creates a search service with the package-level default weights and
// limit.
func New(reg Registry, text TextEngine, vector VectorEngine, emb EmbedderResolver, logger *zap.Logger) *Service {
	return &Service{
		reg: reg, text: text, vector: vector, emb: emb, logger: logger,
		defaults: Defaults{
			SemanticWeight: DefaultSemanticWeight,
			TextWeight:     DefaultTextWeight,
			Limit:          DefaultLimit,
		},
	}
}

// WithDefaults overrides the fallback weights and limit, typically from
// configuration. Zero-valued fields keep their previous value.
func (s *Service) WithDefaults(d Defaults) *Service {
	if d.SemanticWeight > 0 || d.TextWeight > 0 {
		s.defaults.SemanticWeight = d.SemanticWeight
		s.defaults.TextWeight = d.TextWeight
	}
	if d.Limit > 0 {
		s.defaults.Limit = d.Limit
	}
	return s
}

// HybridOptions tunes one hybrid query. The zero value means defaults
// (weights 0.7/0.3, limit 10).
type HybridOptions struct {
	SemanticWeight float64
	TextWeight     float64
	Limit          int
}

// Hybrid runs semantic and text search for a partition and fuses the two
// ranked lists by weighted score.
//
// Either sub-search failing degrades that side to zero results instead of
// failing the request; degradation is counted in metrics but deliberately
// invisible in the response. An unknown entity fails fast with ErrNotFound.
func (s *Service) Hybrid(
	ctx context.Context, tctx domain.TenantContext,
	entity, query string, opts HybridOptions,
) (domain.HybridPage, error) {
	start := time.Now()

	def, err := s.reg.GetEntity(ctx, tctx.TenantID, entity)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("hybrid", "error").Inc()
		return domain.HybridPage{}, fmt.Errorf("resolve entity %s: %w", entity, err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.defaults.Limit
	}
	wSem, wText, err := normalizeWeights(opts.SemanticWeight, opts.TextWeight, s.defaults)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("hybrid", "error").Inc()
		return domain.HybridPage{}, err
	}

	// Fetch twice the limit from each side so fusion has candidates to rank.
	candidates := limit * 2

	var semHits []domain.SemanticHit
	if wSem > 0 && len(def.EmbeddableFields()) > 0 {
		semHits, err = s.semantic(ctx, tctx, def, query, candidates)
		if err != nil {
			s.logger.Warn("Semantic sub-search degraded to empty",
				zap.String("tenant", tctx.TenantID),
				zap.String("entity", entity),
				zap.Error(err))
			metrics.SubSearchDegradedTotal.WithLabelValues("vector").Inc()
			semHits = nil
		}
	}

	var textHits []map[string]any
	if wText > 0 {
		res, err := s.text.Search(ctx, tctx, def, typesense.SearchOptions{
			Query:   query,
			PerPage: candidates,
		})
		if err != nil {
			s.logger.Warn("Text sub-search degraded to empty",
				zap.String("tenant", tctx.TenantID),
				zap.String("entity", entity),
				zap.Error(err))
			metrics.SubSearchDegradedTotal.WithLabelValues("text").Inc()
		} else {
			textHits = res.Hits
		}
	}

	page := fuse(semHits, textHits, wSem, wText, limit)

	metrics.SearchRequestsTotal.WithLabelValues("hybrid", "success").Inc()
	metrics.SearchDuration.WithLabelValues("hybrid").Observe(time.Since(start).Seconds())
	return page, nil
}

// Text runs a text-only search. Engine failures propagate to the caller.
func (s *Service) Text(
	ctx context.Context, tctx domain.TenantContext,
	entity string, opts typesense.SearchOptions,
) (typesense.Result, error) {
	def, err := s.reg.GetEntity(ctx, tctx.TenantID, entity)
	if err != nil {
		return typesense.Result{}, fmt.Errorf("resolve entity %s: %w", entity, err)
	}

	res, err := s.text.Search(ctx, tctx, def, opts)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("text", "error").Inc()
		return typesense.Result{}, err
	}
	metrics.SearchRequestsTotal.WithLabelValues("text", "success").Inc()
	return res, nil
}

// Semantic runs a vector-only search. Configuration and engine failures
// propagate to the caller.
func (s *Service) Semantic(
	ctx context.Context, tctx domain.TenantContext,
	entity, query string, limit int,
) ([]domain.SemanticHit, error) {
	def, err := s.reg.GetEntity(ctx, tctx.TenantID, entity)
	if err != nil {
		return nil, fmt.Errorf("resolve entity %s: %w", entity, err)
	}
	if limit <= 0 {
		limit = s.defaults.Limit
	}

	hits, err := s.semantic(ctx, tctx, def, query, limit)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("semantic", "error").Inc()
		return nil, err
	}
	metrics.SearchRequestsTotal.WithLabelValues("semantic", "success").Inc()
	return hits, nil
}

// Global runs hybrid search across every entity of the tenant, keyed by
// entity name. A failing entity is skipped, not fatal to the whole request.
func (s *Service) Global(
	ctx context.Context, tctx domain.TenantContext,
	query string, limitPerEntity int,
) (map[string]domain.HybridPage, error) {
	defs, err := s.reg.GetEntities(ctx, tctx.TenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve entities: %w", err)
	}

	out := make(map[string]domain.HybridPage, len(defs))
	for _, def := range defs {
		page, err := s.Hybrid(ctx, tctx, def.Name, query, HybridOptions{Limit: limitPerEntity})
		if err != nil {
			s.logger.Warn("Global search skipped entity",
				zap.String("tenant", tctx.TenantID),
				zap.String("entity", def.Name),
				zap.Error(err))
			continue
		}
		out[def.Name] = page
	}
	return out, nil
}

// semantic embeds the query and searches the tenant-wide vector collection.
// The tenant/unit match clauses are built here, at the call site; the vector
// adapter never injects them.
func (s *Service) semantic(
	ctx context.Context, tctx domain.TenantContext,
	def domain.EntityDefinition, query string, limit int,
) ([]domain.SemanticHit, error) {
	tenant, err := s.reg.GetTenant(ctx, tctx.TenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}

	provider, err := s.emb.Resolve(tenant.Embedding)
	if err != nil {
		return nil, err
	}

	vectors, err := provider.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	filter := &qdrant.Filter{Must: []qdrant.Condition{
		qdrant.MatchCondition("tenant_id", tctx.TenantID),
	}}
	if !def.TenantScoped() {
		filter.Must = append(filter.Must, qdrant.MatchCondition("unit_id", tctx.UnitID))
	}

	points, err := s.vector.SearchPoints(ctx,
		domain.VectorCollectionName(tctx.TenantID, def.Name),
		qdrant.SearchQuery{
			Vector:      vectors[0],
			Limit:       limit,
			Filter:      filter,
			WithPayload: true,
		})
	if err != nil {
		return nil, err
	}

	hits := make([]domain.SemanticHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, domain.SemanticHit{
			ID:      pointID(p.ID),
			Score:   p.Score,
			Payload: p.Payload,
		})
	}
	return hits, nil
}
