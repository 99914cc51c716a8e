// Package embeddings maintains the memory-id → vector index used by hybrid
// search, and the provider glue that produces the vectors.
package embeddings

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one round trip.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Available reports whether the provider can be reached at all. When
	// false, indexing is skipped and search falls back to keyword-only.
	Available() bool
}

// ProviderConfig selects and authenticates an embedding provider.
type ProviderConfig struct {
	// Spec is "provider:model", e.g. "openai:text-embedding-3-small".
	Spec    string
	APIKey  string
	BaseURL string
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client  openai.Client
	model   string
	apiKey  string
	baseURL string
}

// NewOpenAIEmbedder builds an embedder from a provider spec. The provider
// half of the spec picks the default base URL; "openai" targets the public
// API while "ollama" and "local" target a loopback server.
func NewOpenAIEmbedder(cfg ProviderConfig) (*OpenAIEmbedder, error) {
	provider, model, ok := strings.Cut(cfg.Spec, ":")
	if !ok || model == "" {
		return nil, fmt.Errorf("embedding spec %q: want provider:model", cfg.Spec)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		switch provider {
		case "openai":
			baseURL = "https://api.openai.com/v1"
		case "ollama", "local":
			baseURL = "http://127.0.0.1:11434/v1"
		default:
			return nil, fmt.Errorf("unknown embedding provider %q", provider)
		}
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	return &OpenAIEmbedder{
		client:  openai.NewClient(opts...),
		model:   model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
	}, nil
}

// Available reports true when an API key is configured or the base URL
// points at loopback (a local server needs no key).
func (e *OpenAIEmbedder) Available() bool {
	if e.apiKey != "" {
		return true
	}
	return isLoopback(e.baseURL)
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	res, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(res.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings response: got %d vectors for %d inputs", len(res.Data), len(texts))
	}
	out := make([][]float32, len(res.Data))
	for i, d := range res.Data {
		vec := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			vec[j] = float32(f)
		}
		out[i] = vec
	}
	return out, nil
}

func isLoopback(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
