package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/lectern/internal/config"
)

func newEmbedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewRemoteProvider_RequiresBaseURL(t *testing.T) {
	_, err := NewRemoteProvider(RemoteConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRemoteProvider_EmbedDocuments(t *testing.T) {
	srv := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Inputs, 2)

		vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}
		require.NoError(t, json.NewEncoder(w).Encode(vectors))
	})

	p, err := NewRemoteProvider(RemoteConfig{BaseURL: srv.URL, APIKey: "secret", Dimension: 2})
	require.NoError(t, err)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
	assert.Equal(t, 2, p.Dimension())
}

func TestRemoteProvider_EmbedQuery(t *testing.T) {
	srv := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode([][]float32{{1, 2, 3}}))
	})

	p, err := NewRemoteProvider(RemoteConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	vector, err := p.EmbedQuery(context.Background(), "a question")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vector)
}

func TestRemoteProvider_EmptyInput(t *testing.T) {
	p, err := NewRemoteProvider(RemoteConfig{BaseURL: "http://localhost:1"})
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestRemoteProvider_ServerError(t *testing.T) {
	srv := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})

	p, err := NewRemoteProvider(RemoteConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestRemoteProvider_VectorCountMismatch(t *testing.T) {
	srv := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode([][]float32{{1}}))
	})

	p, err := NewRemoteProvider(RemoteConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), []string{"one", "two"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestNewProvider_Remote(t *testing.T) {
	cfg := config.EmbeddingsConfig{
		Provider: "remote",
		Model:    "BAAI/bge-small-en-v1.5",
	}
	cfg.Remote.BaseURL = "http://localhost:8081"

	p, err := NewProvider(cfg)
	require.NoError(t, err)
	defer p.Close()
	assert.IsType(t, &RemoteProvider{}, p)
}

func TestNewProvider_Unsupported(t *testing.T) {
	_, err := NewProvider(config.EmbeddingsConfig{Provider: "openai"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
