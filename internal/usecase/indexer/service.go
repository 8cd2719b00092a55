// Package indexer keeps both search engines consistent with the primary
// store: a change-capture service per (tenant, unit, entity) partition, plus
// a one-shot backfill over existing records.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/domain"
	"github.com/kailas-cloud/crmdex/internal/domain/document"
	"github.com/kailas-cloud/crmdex/internal/engine/qdrant"
	"github.com/kailas-cloud/crmdex/internal/metrics"
)

// dimensionProbeText is embedded once per (tenant, entity) to size the vector
// collection before the first real upsert.
const dimensionProbeText = "dimension probe"

const defaultSettleDelay = 100 * time.Millisecond

// Service subscribes to primary-store change feeds and re-projects mutated
// documents into both engines.
type Service struct {
	src    Source
	reg    Registry
	text   TextEngine
	vector VectorEngine
	emb    EmbedderResolver
	logger *zap.Logger

	// settleDelay is waited before re-fetching after an update/replace event,
	// so the write is durably visible.
	settleDelay time.Duration

	mu     sync.Mutex
	feeds  []Feed
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// vectorDims memoizes discovered dimensionality per vector collection.
	dimMu      sync.Mutex
	vectorDims map[string]int
}

// New creates a change-capture indexer.
func New(
	src Source, reg Registry, text TextEngine, vector VectorEngine,
	emb EmbedderResolver, logger *zap.Logger,
) *Service {
	return &Service{
		src:         src,
		reg:         reg,
		text:        text,
		vector:      vector,
		emb:         emb,
		logger:      logger,
		settleDelay: defaultSettleDelay,
		vectorDims:  make(map[string]int),
	}
}

// WithSettleDelay overrides the update re-fetch delay.
func (s *Service) WithSettleDelay(d time.Duration) *Service {
	if d >= 0 {
		s.settleDelay = d
	}
	return s
}

// Start enumerates all tenants, units, and entities and opens one change feed
// per partition. Tenant-scoped entities are watched once per (tenant, entity)
// no matter how many units reference them. A partition that fails to start is
// logged and skipped; the rest proceed.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	tenants, err := s.reg.Tenants(ctx)
	if err != nil {
		return fmt.Errorf("enumerate tenants: %w", err)
	}

	for _, tenant := range tenants {
		defs, err := s.reg.GetEntities(ctx, tenant.ID)
		if err != nil {
			s.logger.Error("Failed to load entities, skipping tenant",
				zap.String("tenant", tenant.ID), zap.Error(err))
			continue
		}

		watched := make(map[string]bool, len(defs))
		for _, unit := range tenantUnits(tenant) {
			for _, def := range defs {
				tctx := domain.TenantContext{TenantID: tenant.ID, UnitID: unit}
				if def.TenantScoped() {
					if watched[def.Name] {
						continue
					}
					watched[def.Name] = true
					tctx = tctx.Global()
				}

				if err := s.watchPartition(ctx, tenant, tctx, def); err != nil {
					s.logger.Error("Failed to watch partition",
						zap.String("tenant", tctx.TenantID),
						zap.String("unit", tctx.UnitID),
						zap.String("entity", def.Name),
						zap.Error(err))
				}
			}
		}
	}
	return nil
}

// Stop closes all feed subscriptions and waits for their consumers to drain.
// The primary-store connection is closed by the owner afterwards.
func (s *Service) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	feeds := s.feeds
	s.feeds = nil
	s.mu.Unlock()

	for _, f := range feeds {
		if err := f.Close(ctx); err != nil {
			s.logger.Warn("Failed to close change feed", zap.Error(err))
		}
	}
	s.wg.Wait()
}

func (s *Service) watchPartition(
	ctx context.Context, tenant domain.Tenant,
	tctx domain.TenantContext, def domain.EntityDefinition,
) error {
	if err := s.ensureSchemas(ctx, tenant, tctx, def); err != nil {
		return err
	}

	collection := domain.CollectionName(tctx.TenantID, tctx.UnitID, def.Name, def.TenantScoped())
	feed, err := s.src.Watch(ctx, collection)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", collection, err)
	}

	s.mu.Lock()
	s.feeds = append(s.feeds, feed)
	s.mu.Unlock()
	metrics.WatchedPartitions.Inc()

	s.logger.Info("Watching partition",
		zap.String("tenant", tctx.TenantID),
		zap.String("unit", tctx.UnitID),
		zap.String("entity", def.Name),
		zap.String("collection", collection))

	s.wg.Add(1)
	go s.consume(ctx, feed, tenant, tctx, def, collection)
	return nil
}

// consume processes one partition's events to completion. A failing event is
// logged and the feed continues; a failing feed stops this partition only.
func (s *Service) consume(
	ctx context.Context, feed Feed, tenant domain.Tenant,
	tctx domain.TenantContext, def domain.EntityDefinition, collection string,
) {
	defer s.wg.Done()
	defer metrics.WatchedPartitions.Dec()

	for {
		ev, ok := feed.Next(ctx)
		if !ok {
			break
		}

		start := time.Now()
		if err := s.handleEvent(ctx, tenant, tctx, def, collection, ev); err != nil {
			metrics.IndexEventsTotal.WithLabelValues(string(ev.Operation), "error").Inc()
			s.logger.Error("Failed to process change event",
				zap.String("collection", collection),
				zap.String("operation", string(ev.Operation)),
				zap.String("document_id", ev.DocumentID),
				zap.Error(err))
			continue
		}
		metrics.IndexEventsTotal.WithLabelValues(string(ev.Operation), "success").Inc()
		metrics.IndexEventDuration.WithLabelValues(string(ev.Operation)).Observe(time.Since(start).Seconds())
	}

	if err := feed.Err(); err != nil && ctx.Err() == nil {
		s.logger.Error("Change feed terminated, partition no longer synced",
			zap.String("collection", collection),
			zap.Error(err))
	}
}

func (s *Service) handleEvent(
	ctx context.Context, tenant domain.Tenant,
	tctx domain.TenantContext, def domain.EntityDefinition,
	collection string, ev domain.ChangeEvent,
) error {
	switch ev.Operation {
	case domain.OpDelete:
		return s.removeDocument(ctx, tctx, def, collection, ev.DocumentID)

	case domain.OpInsert:
		// The event's embedded document is authoritative for inserts.
		return s.indexDocument(ctx, tenant, tctx, def, collection, ev.DocumentID, ev.Document)

	case domain.OpUpdate, domain.OpReplace:
		// Re-fetch instead of trusting the embedded snapshot: the event can
		// fire slightly before the write is durably visible.
		if err := s.settle(ctx); err != nil {
			return err
		}
		doc, err := s.src.FindByID(ctx, collection, ev.DocumentID)
		if errors.Is(err, domain.ErrNotFound) {
			// Deleted right after the update; the delete event will follow.
			s.logger.Debug("Document gone before re-fetch, skipping",
				zap.String("collection", collection),
				zap.String("document_id", ev.DocumentID))
			return nil
		}
		if err != nil {
			return fmt.Errorf("re-fetch document: %w", err)
		}
		return s.indexDocument(ctx, tenant, tctx, def, collection, ev.DocumentID, doc)

	default:
		s.logger.Debug("Ignoring change operation",
			zap.String("operation", string(ev.Operation)))
		return nil
	}
}

// indexDocument normalizes, projects, and dual-writes one document. The two
// writes are independent and not atomic; backfill is the recovery path for
// drift.
func (s *Service) indexDocument(
	ctx context.Context, tenant domain.Tenant,
	tctx domain.TenantContext, def domain.EntityDefinition,
	collection, id string, raw map[string]any,
) error {
	if raw == nil {
		return fmt.Errorf("change event for %s carries no document: %w", id, domain.ErrValidation)
	}

	flat := document.Normalize(raw)
	textDoc, payload := document.Project(flat, id, tctx, def)

	if err := s.text.UpsertDocument(ctx, collection, textDoc); err != nil {
		return fmt.Errorf("text write: %w", err)
	}

	embFields := def.EmbeddableFields()
	if len(embFields) == 0 {
		return nil
	}
	content := strings.TrimSpace(domain.ConcatFields(flat, embFields))
	if content == "" {
		return nil
	}

	provider, err := s.emb.Resolve(tenant.Embedding)
	if err != nil {
		return fmt.Errorf("resolve embedder: %w", err)
	}
	vectors, err := provider.EmbedTexts(ctx, []string{content})
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}
	if len(vectors) == 0 {
		return nil
	}

	vectorCollection := domain.VectorCollectionName(tctx.TenantID, def.Name)
	err = s.vector.UpsertPoints(ctx, vectorCollection, []qdrant.Point{{
		ID:      id,
		Vector:  vectors[0],
		Payload: payload,
	}})
	if err != nil {
		return fmt.Errorf("vector write: %w", err)
	}
	return nil
}

// removeDocument deletes from the text engine, and from the vector engine iff
// the entity has embeddable fields. Absent targets are not errors.
func (s *Service) removeDocument(
	ctx context.Context, tctx domain.TenantContext,
	def domain.EntityDefinition, collection, id string,
) error {
	if err := s.text.DeleteDocument(ctx, collection, id); err != nil {
		return fmt.Errorf("text delete: %w", err)
	}
	if len(def.EmbeddableFields()) == 0 {
		return nil
	}
	vectorCollection := domain.VectorCollectionName(tctx.TenantID, def.Name)
	if err := s.vector.DeletePoints(ctx, vectorCollection, []any{id}); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}
	return nil
}

// ensureSchemas creates the text collection always, and the vector collection
// only when the entity has embeddable fields, sizing it from a probe
// embedding.
func (s *Service) ensureSchemas(
	ctx context.Context, tenant domain.Tenant,
	tctx domain.TenantContext, def domain.EntityDefinition,
) error {
	if err := s.text.EnsureCollection(ctx, tctx, def); err != nil {
		return fmt.Errorf("ensure text collection: %w", err)
	}

	if len(def.EmbeddableFields()) == 0 {
		return nil
	}

	vectorCollection := domain.VectorCollectionName(tctx.TenantID, def.Name)
	size, err := s.vectorSize(ctx, tenant, vectorCollection)
	if err != nil {
		return fmt.Errorf("discover vector size: %w", err)
	}
	if err := s.vector.EnsureCollection(ctx, vectorCollection, size); err != nil {
		return fmt.Errorf("ensure vector collection: %w", err)
	}
	return nil
}

// vectorSize discovers the embedding dimensionality once per collection.
// Changing a tenant's embedding model for an existing collection requires a
// migration; this system does not reconcile it.
func (s *Service) vectorSize(ctx context.Context, tenant domain.Tenant, collection string) (int, error) {
	s.dimMu.Lock()
	if size, ok := s.vectorDims[collection]; ok {
		s.dimMu.Unlock()
		return size, nil
	}
	s.dimMu.Unlock()

	provider, err := s.emb.Resolve(tenant.Embedding)
	if err != nil {
		return 0, err
	}
	vectors, err := provider.EmbedTexts(ctx, []string{dimensionProbeText})
	if err != nil {
		return 0, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return 0, fmt.Errorf("probe embedding is empty: %w", domain.ErrEngineFailure)
	}

	size := len(vectors[0])
	s.dimMu.Lock()
	s.vectorDims[collection] = size
	s.dimMu.Unlock()
	return size, nil
}

func (s *Service) settle(ctx context.Context) error {
	if s.settleDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(s.settleDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func tenantUnits(t domain.Tenant) []string {
	if len(t.Units) == 0 {
		return []string{domain.GlobalUnit}
	}
	return t.Units
}
