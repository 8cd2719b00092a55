package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/domain"
	"github.com/kailas-cloud/crmdex/internal/metrics"
)

const defaultModel = "text-embedding-3-small"

// openAIProvider embeds texts via the OpenAI-compatible embeddings API.
// A BaseURL override serves compatible gateways.
type openAIProvider struct {
	client   *openai.Client
	model    openai.EmbeddingModel
	provider string
	logger   *zap.Logger
}

func newOpenAI(settings domain.EmbeddingSettings, logger *zap.Logger) *openAIProvider {
	clientCfg := openai.DefaultConfig(settings.APIKey)
	if settings.BaseURL != "" {
		clientCfg.BaseURL = settings.BaseURL
	}

	model := settings.Model
	if model == "" {
		model = defaultModel
	}
	provider := settings.Provider
	if provider == "" {
		provider = "openai"
	}

	return &openAIProvider{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    openai.EmbeddingModel(model),
		provider: provider,
		logger:   logger,
	}
}

// EmbedTexts returns one vector per input, order preserved.
func (p *openAIProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          p.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	start := time.Now()
	resp, err := p.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(p.provider, string(p.model), "error").Inc()
		return nil, fmt.Errorf("create embeddings: %v: %w", err, domain.ErrEngineFailure)
	}
	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(p.provider, string(p.model), "error").Inc()
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs: %w",
			len(resp.Data), len(texts), domain.ErrEngineFailure)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(p.provider, string(p.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(p.provider, string(p.model)).Observe(duration.Seconds())

	// The API reports each vector's input position; order by it.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding response index %d out of range: %w",
				d.Index, domain.ErrEngineFailure)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
