// Package vectorstore defines the interface for vector storage operations.
package vectorstore

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/lectern/internal/document"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when the chunk collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyChunks indicates an empty or nil chunk batch.
	ErrEmptyChunks = errors.New("empty or nil chunks")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Embedder generates vector embeddings from text.
//
// Embeddings are dense numerical representations that capture semantic
// meaning, enabling similarity search. Implementations can run a local model
// (FastEmbed) or call a remote embedding service.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns one embedding per input text.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Result is one chunk returned by a similarity query.
type Result struct {
	// ID is the chunk identifier ({source_id}_{chunk_index}).
	ID string `json:"id"`

	// Text is the chunk text.
	Text string `json:"text"`

	// Metadata is the denormalized chunk metadata. Every key is present;
	// absent values are empty strings.
	Metadata map[string]string `json:"metadata"`

	// Distance measures dissimilarity to the query: lower is more similar.
	// Backends reporting similarity scores convert as distance = 1 - score.
	Distance float32 `json:"distance"`
}

// Store is the interface for chunk storage and similarity search.
//
// The interface is transport-agnostic: the embedded chromem-go store and the
// external Qdrant gRPC store both implement it. All chunks live in a single
// collection; tenancy and curriculum scoping happen through metadata filters.
type Store interface {
	// AddChunks indexes a batch of chunks and returns their IDs in input
	// order. An empty batch returns ErrEmptyChunks.
	AddChunks(ctx context.Context, chunks []document.Chunk) ([]string, error)

	// Query returns up to k chunks most similar to the query text, ordered
	// by ascending distance. Filters restrict results to chunks whose
	// metadata matches every given key/value pair exactly. An empty store
	// returns an empty slice, not an error.
	Query(ctx context.Context, text string, k int, filters map[string]string) ([]Result, error)

	// ListAll returns every stored chunk ordered by source then chunk
	// index. Intended for inspection endpoints, not hot paths.
	ListAll(ctx context.Context) ([]document.Chunk, error)

	// DeleteSource removes all chunks belonging to a source and reports
	// how many were removed. Unknown sources delete zero chunks without
	// error, which makes re-ingestion idempotent.
	DeleteSource(ctx context.Context, sourceID string) (int, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
