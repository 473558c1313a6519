// Package embeddings provides embedding generation via multiple providers.
package embeddings

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/lectern/internal/config"
	"github.com/fyrsmithlabs/lectern/internal/vectorstore"
)

// Sentinel errors for embedding providers.
var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")

	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for embedding providers.
type Provider interface {
	vectorstore.Embedder

	// Dimension returns the embedding dimension of the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// NewProvider creates an embedding provider from config.
//
//   - "fastembed" (default): local ONNX inference, no network calls
//   - "remote": HTTP embedding service (text-embeddings-inference API)
func NewProvider(cfg config.EmbeddingsConfig) (Provider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "remote":
		return NewRemoteProvider(RemoteConfig{
			BaseURL: cfg.Remote.BaseURL,
			APIKey:  cfg.Remote.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Remote.Timeout,
		})
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: fastembed, remote)",
			ErrInvalidConfig, cfg.Provider)
	}
}
