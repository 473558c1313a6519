// Package vectorstore provides vector storage implementations.
package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lectern/internal/document"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("lectern.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.local/share/lectern/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the chunk collection name.
	// Default: "lectern_chunks"
	Collection string

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	// Default: 384 (for FastEmbed bge-small-en-v1.5)
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.local/share/lectern/vectorstore"
	}
	if c.Collection == "" {
		c.Collection = "lectern_chunks"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name is required", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies: no external database service, no CGO, persistence to gob
// files on disk. It is the default backend so a single binary can serve a
// full ingest/retrieve cycle.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	config     ChromemConfig
	logger     *zap.Logger
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	// chromem sets the OpenAI embedder when nil is passed, so the embedding
	// func must always be supplied explicitly.
	store.collection, err = db.GetOrCreateCollection(config.Collection, nil, store.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}

	logger.Info("ChromemStore initialized",
		zap.String("path", path),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
	)

	return store, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// embeddingFunc adapts the Embedder interface to chromem's callback form.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// AddChunks indexes a batch of chunks, embedding all texts in one call.
func (s *ChromemStore) AddChunks(ctx context.Context, chunks []document.Chunk) ([]string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddChunks")
	defer span.End()

	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	if len(chunks) == 0 {
		return nil, ErrEmptyChunks
	}

	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			return nil, fmt.Errorf("chunk at index %d has no ID", i)
		}
		ids[i] = c.ID
		texts[i] = c.Text
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Metadata:  c.Metadata,
			Embedding: embeddings[i],
		}
	}

	// Concurrency of 1 since embeddings are already computed.
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding chunks: %w", err)
	}

	span.SetAttributes(attribute.Int("chunks_added", len(ids)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("added chunks to chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(chunks)),
	)

	return ids, nil
}

// Query performs similarity search with optional exact-match metadata filters.
func (s *ChromemStore) Query(ctx context.Context, text string, k int, filters map[string]string) ([]Result, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	)

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	// chromem requires nResults <= doc count.
	docCount := s.collection.Count()
	if docCount == 0 {
		return []Result{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := s.collection.Query(ctx, text, k, filters, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = Result{
			ID:       r.ID,
			Text:     r.Content,
			Metadata: r.Metadata,
			Distance: 1 - r.Similarity,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(out)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("queried chromem collection",
		zap.String("collection", s.config.Collection),
		zap.Int("k", k),
		zap.Int("results", len(out)),
	)

	return out, nil
}

// ListAll returns every stored chunk ordered by source then chunk index.
//
// chromem has no enumeration API, so this queries with a constant unit vector
// for the full document count and re-sorts. Fine for inspection endpoints;
// not a hot path.
func (s *ChromemStore) ListAll(ctx context.Context) ([]document.Chunk, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.ListAll")
	defer span.End()

	docs, err := s.allDocuments(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sortChunks(docs)
	span.SetAttributes(attribute.Int("chunk_count", len(docs)))
	span.SetStatus(codes.Ok, "success")
	return docs, nil
}

// DeleteSource removes every chunk of a source and reports the count.
func (s *ChromemStore) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteSource")
	defer span.End()

	span.SetAttributes(attribute.String("source_id", sourceID))

	if sourceID == "" {
		return 0, fmt.Errorf("source ID cannot be empty")
	}

	docs, err := s.allDocuments(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	matched := 0
	for _, d := range docs {
		if d.Metadata[document.KeySourceID] == sourceID {
			matched++
		}
	}
	if matched == 0 {
		span.SetStatus(codes.Ok, "no chunks for source")
		return 0, nil
	}

	where := map[string]string{document.KeySourceID: sourceID}
	if err := s.collection.Delete(ctx, where, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("deleting chunks for source %s: %w", sourceID, err)
	}

	span.SetAttributes(attribute.Int("chunks_deleted", matched))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("deleted source chunks from chromem",
		zap.String("source_id", sourceID),
		zap.Int("count", matched),
	)

	return matched, nil
}

// Count returns the number of stored chunks.
func (s *ChromemStore) Count(_ context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Close is a no-op: chromem persists synchronously on every write.
func (s *ChromemStore) Close() error {
	return nil
}

// allDocuments fetches the full collection via a constant-vector query.
func (s *ChromemStore) allDocuments(ctx context.Context) ([]document.Chunk, error) {
	count := s.collection.Count()
	if count == 0 {
		return []document.Chunk{}, nil
	}

	// Any non-zero vector works; similarity ordering is discarded.
	probe := make([]float32, s.config.VectorSize)
	probe[0] = 1

	results, err := s.collection.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("listing collection %s: %w", s.config.Collection, err)
	}

	chunks := make([]document.Chunk, len(results))
	for i, r := range results {
		chunks[i] = document.Chunk{ID: r.ID, Text: r.Content, Metadata: r.Metadata}
	}
	return chunks, nil
}

// sortChunks orders chunks by source ID, then numeric chunk index.
func sortChunks(chunks []document.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		si, sj := chunks[i].Metadata[document.KeySourceID], chunks[j].Metadata[document.KeySourceID]
		if si != sj {
			return si < sj
		}
		ii, _ := strconv.Atoi(chunks[i].Metadata[document.KeyChunkIndex])
		ij, _ := strconv.Atoi(chunks[j].Metadata[document.KeyChunkIndex])
		return ii < ij
	})
}
