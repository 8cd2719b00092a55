// Package embedding resolves and runs embeddings providers.
package embedding

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/domain"
)

// Provider embeds texts into vectors: one vector per input, order preserved.
type Provider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// CacheStore is the key-value contract consumed by the cache decorator.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Resolver chooses an embeddings backend per tenant: a tenant override with a
// non-empty provider fully replaces the global default. Resolved providers
// are memoized so engine handles are process-wide and reused.
type Resolver struct {
	global domain.EmbeddingSettings
	cache  CacheStore
	logger *zap.Logger

	mu        sync.Mutex
	providers map[string]Provider
}

// NewResolver creates a resolver around the global default settings.
func NewResolver(global domain.EmbeddingSettings, logger *zap.Logger) *Resolver {
	return &Resolver{
		global:    global,
		logger:    logger,
		providers: make(map[string]Provider),
	}
}

// WithCache wraps every resolved provider in the embedding cache decorator.
func (r *Resolver) WithCache(store CacheStore) *Resolver {
	r.cache = store
	return r
}

// Resolve returns the provider for the given tenant override (nil or empty
// provider name means the global default). A missing API key is surfaced as
// ErrMissingAPIKey before any network call is attempted.
func (r *Resolver) Resolve(override *domain.EmbeddingSettings) (Provider, error) {
	settings := r.global
	if override != nil && override.Provider != "" {
		settings = *override
	}

	switch settings.Provider {
	case "", "openai":
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q: %w",
			settings.Provider, domain.ErrConfiguration)
	}

	if settings.APIKey == "" {
		return nil, ErrMissingKey(settings)
	}

	key := settings.Provider + "|" + settings.Model + "|" + settings.BaseURL

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[key]; ok {
		return p, nil
	}

	var p Provider = newOpenAI(settings, r.logger)
	if r.cache != nil {
		p = newCached(p, r.cache, settings, r.logger)
	}
	r.providers[key] = p
	return p, nil
}

// ErrMissingKey builds the distinguished missing-key error for a provider.
func ErrMissingKey(settings domain.EmbeddingSettings) error {
	provider := settings.Provider
	if provider == "" {
		provider = "openai"
	}
	return fmt.Errorf("provider %q: %w", provider, domain.ErrMissingAPIKey)
}
