// CLAUDE:SUMMARY Text embedders for the document store: OpenAI-compatible HTTP client, or a local feature-hashing embedder when no endpoint is set.
// Package embed converts text to float32 vectors for the document store.
//
// With an Endpoint the OpenAI /v1/embeddings wire format is used (vLLM,
// Ollama, OpenAI). Without one, a local feature-hashing embedder produces
// deterministic bag-of-words vectors so search works offline.
//
//	emb := embed.New(embed.Config{Endpoint: "http://localhost:8003", Model: "multilingual-e5-large"})
//	vec, err := emb.Embed(ctx, "login with expired password")
package embed

import (
	"context"
	"log/slog"
	"time"
)

// Embedder converts text to vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is 0 until the first remote call when auto-detecting.
	Dimension() int
	Model() string
}

// Config configures New.
type Config struct {
	// Endpoint is the embedding server base URL. Empty selects the local
	// hashing embedder.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	Model string `json:"model" yaml:"model"`

	// APIKey is sent as a bearer token when set (env EMBED_API_KEY).
	APIKey string `json:"-" yaml:"api_key"`

	// Dimension: 0 auto-detects for remote servers; local default is 256.
	Dimension int `json:"dimension" yaml:"dimension"`

	// BatchSize caps texts per HTTP request. Default: 32.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Timeout per HTTP request. Default: 30s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// New returns the embedder selected by cfg.
func New(cfg Config) Embedder {
	cfg.defaults()
	if cfg.Endpoint == "" {
		return NewHashing(cfg.Dimension)
	}
	return newOpenAIClient(cfg)
}
