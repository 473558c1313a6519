// Package retriever performs semantic retrieval of course material chunks.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lectern/internal/config"
	"github.com/fyrsmithlabs/lectern/internal/document"
	"github.com/fyrsmithlabs/lectern/internal/vectorstore"
)

var tracer = otel.Tracer("lectern.retriever")

// Options narrow a retrieval to a slice of the indexed material.
// Zero values leave the corresponding dimension unfiltered.
type Options struct {
	// N is the number of chunks to retrieve. Zero means the configured
	// default; values above the configured cap are clamped.
	N int

	// VideoID restricts retrieval to chunks of one video.
	VideoID string

	// SubjectID restricts retrieval to one subject.
	SubjectID string

	// ChapterID restricts retrieval to one chapter.
	ChapterID string

	// UserID restricts retrieval to one uploader.
	UserID string
}

// filters converts the set options to exact-match metadata filters.
func (o Options) filters() map[string]string {
	f := make(map[string]string)
	if o.VideoID != "" {
		f[document.KeyVideoID] = o.VideoID
	}
	if o.SubjectID != "" {
		f[document.KeySubjectID] = o.SubjectID
	}
	if o.ChapterID != "" {
		f[document.KeyChapterID] = o.ChapterID
	}
	if o.UserID != "" {
		f[document.KeyUserID] = o.UserID
	}
	if len(f) == 0 {
		return nil
	}
	return f
}

// Retriever finds the chunks most relevant to a question.
type Retriever struct {
	store  vectorstore.Store
	config config.RetrievalConfig
	logger *zap.Logger
}

// New creates a Retriever.
func New(store vectorstore.Store, cfg config.RetrievalConfig, logger *zap.Logger) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NContext <= 0 {
		cfg.NContext = 6
	}
	if cfg.MaxNContext <= 0 {
		cfg.MaxNContext = 50
	}
	return &Retriever{store: store, config: cfg, logger: logger}, nil
}

// Retrieve returns the chunks most similar to the question, ordered by
// ascending distance. An empty index yields an empty slice.
func (r *Retriever) Retrieve(ctx context.Context, question string, opts Options) ([]vectorstore.Result, error) {
	ctx, span := tracer.Start(ctx, "Retriever.Retrieve")
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	n := opts.N
	if n <= 0 {
		n = r.config.NContext
	}
	if n > r.config.MaxNContext {
		n = r.config.MaxNContext
	}

	filters := opts.filters()
	span.SetAttributes(
		attribute.Int("n", n),
		attribute.Int("filter_count", len(filters)),
	)

	results, err := r.store.Query(ctx, question, n, filters)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying vector store: %w", err)
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")

	r.logger.Debug("retrieved chunks",
		zap.Int("n", n),
		zap.Int("results", len(results)),
		zap.String("video_id", opts.VideoID),
	)

	return results, nil
}
