package search

import (
	"context"

	"github.com/kailas-cloud/crmdex/internal/domain"
	"github.com/kailas-cloud/crmdex/internal/embedding"
	"github.com/kailas-cloud/crmdex/internal/engine/qdrant"
	"github.com/kailas-cloud/crmdex/internal/engine/typesense"
)

// Registry reads tenant and entity configuration.
type Registry interface {
	GetTenant(ctx context.Context, tenantID string) (domain.Tenant, error)
	GetEntity(ctx context.Context, tenantID, name string) (domain.EntityDefinition, error)
	GetEntities(ctx context.Context, tenantID string) ([]domain.EntityDefinition, error)
}

// TextEngine executes text searches. Tenant isolation is injected by the
// engine adapter itself.
type TextEngine interface {
	Search(
		ctx context.Context, tctx domain.TenantContext,
		def domain.EntityDefinition, opts typesense.SearchOptions,
	) (typesense.Result, error)
}

// VectorEngine executes nearest-neighbor searches. The adapter trusts its
// caller: tenant/unit match clauses must be part of the query filter.
type VectorEngine interface {
	SearchPoints(ctx context.Context, collection string, q qdrant.SearchQuery) ([]qdrant.ScoredPoint, error)
}

// EmbedderResolver resolves the embeddings provider for a tenant.
type EmbedderResolver interface {
	Resolve(override *domain.EmbeddingSettings) (embedding.Provider, error)
}
