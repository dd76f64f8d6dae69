package llmsidecar

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/lyralabs/evidence-runtime/internal/errors"
)

// EmbeddingProvider produces dense vectors for fragments and claim text,
// used by vector_search's candidate selection (spec §4.3). Grounded on
// internal/llm/gemini_client.go's dual-provider shape: the chat-completion
// path uses the local sidecar (OpenAI-compatible), embeddings use Gemini's
// embedding model directly since the sidecar contract spec.md names is
// chat-only.
type EmbeddingProvider struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewEmbeddingProvider constructs a Gemini-backed embedding client.
func NewEmbeddingProvider(ctx context.Context, apiKey, model string) (*EmbeddingProvider, error) {
	if apiKey == "" {
		return nil, errors.ConfigError("embedding provider requires an API key")
	}
	if model == "" {
		model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &EmbeddingProvider{
		client: client,
		model:  model,
		logger: slog.Default().With("component", "llmsidecar.embedding"),
	}, nil
}

// Embed returns a single dense vector for text.
func (p *EmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Models.EmbedContent(ctx, p.model, genai.Text(text), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ExtractionFailed, errors.SeverityMedium, "embedding call failed")
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.ExtractionFailedError("")
	}
	return resp.Embeddings[0].Values, nil
}
