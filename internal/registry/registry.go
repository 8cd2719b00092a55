// Package registry is the read-through cached loader for tenant and entity
// configuration. The cache is an explicitly constructed object owned by the
// composition root, never an ambient global; Clear is its invalidation hook.
package registry

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/domain"
)

// Source loads configuration from the backing store.
type Source interface {
	LoadTenants(ctx context.Context) ([]domain.Tenant, error)
	LoadEntities(ctx context.Context, tenantID string) ([]domain.EntityDefinition, error)
}

// Registry caches tenant and entity configuration per tenant.
type Registry struct {
	src    Source
	logger *zap.Logger

	mu       sync.RWMutex
	tenants  map[string]domain.Tenant
	order    []string
	entities map[string][]domain.EntityDefinition
	loaded   bool
}

// New creates a registry around a configuration source.
func New(src Source, logger *zap.Logger) *Registry {
	return &Registry{
		src:      src,
		logger:   logger,
		tenants:  make(map[string]domain.Tenant),
		entities: make(map[string][]domain.EntityDefinition),
	}
}

// Tenants returns all tenants in stable load order.
func (r *Registry) Tenants(ctx context.Context) ([]domain.Tenant, error) {
	if err := r.ensureTenants(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Tenant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tenants[id])
	}
	return out, nil
}

// GetTenant returns one tenant's configuration.
func (r *Registry) GetTenant(ctx context.Context, tenantID string) (domain.Tenant, error) {
	if err := r.ensureTenants(ctx); err != nil {
		return domain.Tenant{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return domain.Tenant{}, fmt.Errorf("tenant %s: %w", tenantID, domain.ErrNotFound)
	}
	return t, nil
}

// GetEntities returns all entity definitions of a tenant in declaration order.
func (r *Registry) GetEntities(ctx context.Context, tenantID string) ([]domain.EntityDefinition, error) {
	r.mu.RLock()
	defs, ok := r.entities[tenantID]
	r.mu.RUnlock()
	if ok {
		return defs, nil
	}

	defs, err := r.src.LoadEntities(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load entities for tenant %s: %w", tenantID, err)
	}

	r.mu.Lock()
	r.entities[tenantID] = defs
	r.mu.Unlock()
	return defs, nil
}

// GetEntity returns one entity definition of a tenant.
func (r *Registry) GetEntity(ctx context.Context, tenantID, name string) (domain.EntityDefinition, error) {
	defs, err := r.GetEntities(ctx, tenantID)
	if err != nil {
		return domain.EntityDefinition{}, err
	}
	for _, def := range defs {
		if def.Name == name {
			return def, nil
		}
	}
	return domain.EntityDefinition{}, fmt.Errorf("entity %s: %w", name, domain.ErrNotFound)
}

// Clear invalidates cached configuration. With no arguments the whole cache
// is dropped; with tenant ids only those tenants' entries are dropped.
func (r *Registry) Clear(tenantIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(tenantIDs) == 0 {
		r.tenants = make(map[string]domain.Tenant)
		r.order = nil
		r.entities = make(map[string][]domain.EntityDefinition)
		r.loaded = false
		return
	}
	for _, id := range tenantIDs {
		delete(r.entities, id)
		delete(r.tenants, id)
	}
	// The tenant list itself may be stale; reload it on next access.
	r.loaded = false
	r.order = nil
}

func (r *Registry) ensureTenants(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	tenants, err := r.src.LoadTenants(ctx)
	if err != nil {
		return fmt.Errorf("load tenants: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants = make(map[string]domain.Tenant, len(tenants))
	r.order = make([]string, 0, len(tenants))
	for _, t := range tenants {
		r.tenants[t.ID] = t
		r.order = append(r.order, t.ID)
	}
	r.loaded = true
	return nil
}
