// Package mongo adapts the primary document store: configuration reads,
// point lookups, backfill iteration, and per-partition change feeds.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/domain"
)

// Collections holding tenant and entity configuration.
const (
	tenantsCollection  = "tenants"
	entitiesCollection = "entity_definitions"
)

// Config holds the primary store connection settings.
type Config struct {
	URI            string
	Database       string
	ConfigDatabase string
	ConnectTimeout time.Duration

	// BackfillPageSize is the cursor batch size used by Iterate. Zero keeps
	// the driver default.
	BackfillPageSize int
}

// Store is the primary store handle, reused process-wide.
type Store struct {
	client       *mongo.Client
	data         *mongo.Database
	config       *mongo.Database
	logger       *zap.Logger
	backfillPage int
}

// New connects to the primary store and verifies connectivity.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect primary store: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping primary store: %w", err)
	}

	configDB := cfg.ConfigDatabase
	if configDB == "" {
		configDB = cfg.Database
	}

	return &Store{
		client:       client,
		data:         client.Database(cfg.Database),
		config:       client.Database(configDB),
		logger:       logger,
		backfillPage: cfg.BackfillPageSize,
	}, nil
}

// Close disconnects from the primary store.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect primary store: %w", err)
	}
	return nil
}

// Ping checks store connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping primary store: %w", err)
	}
	return nil
}

// LoadTenants implements registry.Source.
func (s *Store) LoadTenants(ctx context.Context) ([]domain.Tenant, error) {
	cursor, err := s.config.Collection(tenantsCollection).
		Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find tenants: %w", err)
	}

	var tenants []domain.Tenant
	if err := cursor.All(ctx, &tenants); err != nil {
		return nil, fmt.Errorf("decode tenants: %w", err)
	}
	return tenants, nil
}

// LoadEntities implements registry.Source.
func (s *Store) LoadEntities(ctx context.Context, tenantID string) ([]domain.EntityDefinition, error) {
	cursor, err := s.config.Collection(entitiesCollection).
		Find(ctx, bson.M{"tenant_id": tenantID}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find entity definitions: %w", err)
	}

	var defs []domain.EntityDefinition
	if err := cursor.All(ctx, &defs); err != nil {
		return nil, fmt.Errorf("decode entity definitions: %w", err)
	}
	return defs, nil
}

// FindByID fetches the authoritative current document by identifier. Both
// object-id and plain string identifiers are tried.
func (s *Store) FindByID(ctx context.Context, collection, id string) (map[string]any, error) {
	var doc map[string]any
	err := s.data.Collection(collection).FindOne(ctx, idFilter(id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("document %s in %s: %w", id, collection, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find document %s in %s: %w", id, collection, err)
	}
	return doc, nil
}

// Iterate walks every document of a collection, calling fn with the document
// identifier and raw document. Used by backfill; the cursor pages at the
// configured backfill page size.
func (s *Store) Iterate(ctx context.Context, collection string, fn func(id string, doc map[string]any) error) error {
	cursor, err := s.data.Collection(collection).Find(ctx, bson.M{}, iterateOptions(s.backfillPage))
	if err != nil {
		return fmt.Errorf("find all in %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc map[string]any
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("decode document in %s: %w", collection, err)
		}
		if err := fn(idString(doc["_id"]), doc); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", collection, err)
	}
	return nil
}

func iterateOptions(pageSize int) *options.FindOptions {
	opts := options.Find()
	if pageSize > 0 {
		opts.SetBatchSize(int32(pageSize))
	}
	return opts
}

func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": oid}
	}
	return bson.M{"_id": id}
}

// idString renders a store identifier as a plain string.
func idString(v any) string {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}
