package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/domain"
)

// Backfill re-projects every existing document of a tenant into both engines
// once, without a live subscription. Vector setup failures for one entity are
// logged and the backfill moves on to the next; per-document failures are
// logged and skipped. This is the recovery path for dual-write drift.
func (s *Service) Backfill(ctx context.Context, tenantID string) error {
	tenant, err := s.reg.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("resolve tenant: %w", err)
	}
	defs, err := s.reg.GetEntities(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("resolve entities: %w", err)
	}

	done := make(map[string]bool, len(defs))
	for _, unit := range tenantUnits(tenant) {
		for _, def := range defs {
			tctx := domain.TenantContext{TenantID: tenant.ID, UnitID: unit}
			if def.TenantScoped() {
				if done[def.Name] {
					continue
				}
				done[def.Name] = true
				tctx = tctx.Global()
			}

			if err := s.backfillPartition(ctx, tenant, tctx, def); err != nil {
				s.logger.Error("Backfill failed for partition, continuing",
					zap.String("tenant", tctx.TenantID),
					zap.String("unit", tctx.UnitID),
					zap.String("entity", def.Name),
					zap.Error(err))
			}
		}
	}
	return nil
}

func (s *Service) backfillPartition(
	ctx context.Context, tenant domain.Tenant,
	tctx domain.TenantContext, def domain.EntityDefinition,
) error {
	if err := s.ensureSchemas(ctx, tenant, tctx, def); err != nil {
		return err
	}

	collection := domain.CollectionName(tctx.TenantID, tctx.UnitID, def.Name, def.TenantScoped())

	var indexed, failed int
	err := s.src.Iterate(ctx, collection, func(id string, doc map[string]any) error {
		if err := s.indexDocument(ctx, tenant, tctx, def, collection, id, doc); err != nil {
			failed++
			s.logger.Warn("Backfill skipped document",
				zap.String("collection", collection),
				zap.String("document_id", id),
				zap.Error(err))
			return nil
		}
		indexed++
		return nil
	})
	if err != nil {
		return fmt.Errorf("iterate %s: %w", collection, err)
	}

	s.logger.Info("Backfill finished for partition",
		zap.String("collection", collection),
		zap.Int("indexed", indexed),
		zap.Int("failed", failed))
	return nil
}
