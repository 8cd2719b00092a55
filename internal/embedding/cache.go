package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/cache"
	"github.com/kailas-cloud/crmdex/internal/domain"
	"github.com/kailas-cloud/crmdex/internal/metrics"
)

const cacheKeyPrefix = "crmdex:emb:"

// cachedProvider caches vectors in a key-value store as little-endian float32
// blobs, keyed by provider, model, and text hash. Cache failures are logged
// and fall through to the inner provider.
type cachedProvider struct {
	inner  Provider
	store  CacheStore
	scope  string
	logger *zap.Logger
}

func newCached(inner Provider, store CacheStore, settings domain.EmbeddingSettings, logger *zap.Logger) *cachedProvider {
	provider := settings.Provider
	if provider == "" {
		provider = "openai"
	}
	model := settings.Model
	if model == "" {
		model = defaultModel
	}
	return &cachedProvider{
		inner:  inner,
		store:  store,
		scope:  provider + ":" + model + ":",
		logger: logger,
	}
}

// EmbedTexts serves cached vectors where possible and embeds only the misses,
// preserving input order.
func (c *cachedProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if vec, ok := c.getFromCache(ctx, c.cacheKey(text)); ok {
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			out[i] = vec
			continue
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for i, vec := range vecs {
		out[missIdx[i]] = vec
		c.putToCache(ctx, c.cacheKey(missTexts[i]), vec)
	}
	return out, nil
}

func (c *cachedProvider) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.scope + text))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *cachedProvider) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *cachedProvider) putToCache(ctx context.Context, key string, vec []float32) {
	if err := c.store.Set(ctx, key, vectorToBytes(vec)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
