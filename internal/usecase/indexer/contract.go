package indexer

import (
	"context"

	"github.com/kailas-cloud/crmdex/internal/domain"
	"github.com/kailas-cloud/crmdex/internal/embedding"
	"github.com/kailas-cloud/crmdex/internal/engine/qdrant"
)

// Source is the primary store contract: change feeds, authoritative point
// lookups, and full-collection iteration for backfill.
type Source interface {
	Watch(ctx context.Context, collection string) (Feed, error)
	FindByID(ctx context.Context, collection, id string) (map[string]any, error)
	Iterate(ctx context.Context, collection string, fn func(id string, doc map[string]any) error) error
}

// Feed is a live change subscription. Next blocks for the next event and
// returns false when the feed ends; Err reports the terminal error, if any.
type Feed interface {
	Next(ctx context.Context) (domain.ChangeEvent, bool)
	Err() error
	Close(ctx context.Context) error
}

// Registry reads tenant and entity configuration.
type Registry interface {
	Tenants(ctx context.Context) ([]domain.Tenant, error)
	GetTenant(ctx context.Context, tenantID string) (domain.Tenant, error)
	GetEntities(ctx context.Context, tenantID string) ([]domain.EntityDefinition, error)
}

// TextEngine receives text-side writes.
type TextEngine interface {
	EnsureCollection(ctx context.Context, tctx domain.TenantContext, def domain.EntityDefinition) error
	UpsertDocument(ctx context.Context, collection string, doc map[string]any) error
	DeleteDocument(ctx context.Context, collection, id string) error
}

// VectorEngine receives vector-side writes.
type VectorEngine interface {
	EnsureCollection(ctx context.Context, name string, vectorSize int) error
	UpsertPoints(ctx context.Context, name string, points []qdrant.Point) error
	DeletePoints(ctx context.Context, name string, ids []any) error
}

// EmbedderResolver resolves the embeddings provider for a tenant.
type EmbedderResolver interface {
	Resolve(override *domain.EmbeddingSettings) (embedding.Provider, error)
}
