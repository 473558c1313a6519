// Package ingest orchestrates the upload pipeline: route a file or URL by
// type, extract its text, chunk it and index it in the vector store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lectern/internal/chunker"
	"github.com/fyrsmithlabs/lectern/internal/document"
	"github.com/fyrsmithlabs/lectern/internal/download"
	"github.com/fyrsmithlabs/lectern/internal/extract"
	"github.com/fyrsmithlabs/lectern/internal/transcriptpdf"
	"github.com/fyrsmithlabs/lectern/internal/vectorstore"
)

var tracer = otel.Tracer("lectern.ingest")

// Sentinel errors for ingestion.
var (
	// ErrUnsupportedFileType indicates an upload with no known handler.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrEmptyText indicates a source that yielded no extractable text.
	// This is an input problem, not a pipeline failure.
	ErrEmptyText = errors.New("source contains no extractable text")
)

// AudioExtractor produces and segments audio from video files.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, videoPath string) (string, error)
	SplitAudio(ctx context.Context, audioPath string, segmentSeconds int) ([]string, error)
	Cleanup(path string)
}

// Transcriber turns audio segments into a transcript.
type Transcriber interface {
	TranscribeSegments(ctx context.Context, paths []string) (string, error)
}

// Fetcher downloads remote media to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, dir string) (string, error)
}

// Options tunes pipeline behavior.
type Options struct {
	// SegmentSeconds is the audio segment length for transcription.
	SegmentSeconds int

	// TranscriptDir receives generated transcript PDFs.
	TranscriptDir string

	// DownloadDir receives media fetched from URLs.
	DownloadDir string
}

// Result reports what an ingestion produced.
type Result struct {
	// SourceID identifies the ingested source; all its chunk IDs derive
	// from it.
	SourceID string `json:"source_id"`

	// Kind is the detected source kind.
	Kind document.Kind `json:"kind"`

	// Chunks is the number of chunks indexed.
	Chunks int `json:"chunks"`

	// Replaced is the number of chunks removed when re-ingesting an
	// existing source ID.
	Replaced int `json:"replaced"`

	// TranscriptText is the full transcript (video sources only).
	TranscriptText string `json:"transcript_text,omitempty"`

	// TranscriptPDF is the rendered transcript path (video sources only).
	TranscriptPDF string `json:"transcript_pdf,omitempty"`
}

// Service runs the ingestion pipeline.
type Service struct {
	store       vectorstore.Store
	chunker     *chunker.Chunker
	media       AudioExtractor
	transcriber Transcriber
	fetcher     Fetcher
	opts        Options
	logger      *zap.Logger

	// extractText is swappable in tests.
	extractText func(ctx context.Context, kind document.Kind, path string) (string, error)

	// newSourceID is swappable in tests.
	newSourceID func() string
}

// NewService creates an ingestion Service. media, transcriber and fetcher may
// be nil when video and URL ingestion are not needed (document-only callers).
func NewService(store vectorstore.Store, ch *chunker.Chunker, media AudioExtractor, transcriber Transcriber, fetcher Fetcher, opts Options, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if ch == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SegmentSeconds <= 0 {
		opts.SegmentSeconds = 30
	}
	if opts.TranscriptDir == "" {
		opts.TranscriptDir = filepath.Join(os.TempDir(), "lectern-transcripts")
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = filepath.Join(os.TempDir(), "lectern-downloads")
	}

	return &Service{
		store:       store,
		chunker:     ch,
		media:       media,
		transcriber: transcriber,
		fetcher:     fetcher,
		opts:        opts,
		logger:      logger,
		extractText: extract.Text,
		newSourceID: func() string { return uuid.New().String() },
	}, nil
}

// ProcessUpload ingests a local file or an HTTP(S) URL.
//
// Videos are transcribed (audio extraction, segmentation, speech-to-text),
// archived as a transcript PDF and indexed; PDF and DOCX files are indexed
// directly. A non-empty sourceID replaces that source's existing chunks;
// an empty one gets a fresh generated ID.
func (s *Service) ProcessUpload(ctx context.Context, input string, meta document.Metadata, sourceID string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Service.ProcessUpload")
	defer span.End()

	path := input
	if download.IsURL(input) {
		if s.fetcher == nil {
			return nil, fmt.Errorf("URL ingestion is not configured")
		}
		fetched, err := s.fetcher.Fetch(ctx, input, s.opts.DownloadDir)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("downloading %s: %w", input, err)
		}
		path = fetched
	}

	kind, ok := document.KindFromFilename(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, filepath.Base(path))
	}
	span.SetAttributes(attribute.String("kind", kind.String()))

	// The stored filename is the uploaded file's, not the temp path's.
	if meta.Filename == "" {
		meta.Filename = filepath.Base(path)
	}
	meta.FileType = fileType(kind, path)

	var result *Result
	var err error
	switch kind {
	case document.KindVideo:
		result, err = s.processVideo(ctx, path, meta, sourceID)
	case document.KindPDF, document.KindDocx:
		result, err = s.processDocument(ctx, kind, path, meta, sourceID)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFileType, kind)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("source_id", result.SourceID),
		attribute.Int("chunks", result.Chunks),
	)
	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// fileType is the denormalized file_type metadata value: the extension for
// documents, "video" for anything transcribed.
func fileType(kind document.Kind, path string) string {
	if kind == document.KindVideo {
		return "video"
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// processVideo runs extract audio -> segment -> transcribe -> render PDF ->
// index.
func (s *Service) processVideo(ctx context.Context, path string, meta document.Metadata, sourceID string) (*Result, error) {
	if s.media == nil || s.transcriber == nil {
		return nil, fmt.Errorf("video ingestion is not configured")
	}

	audioPath, err := s.media.ExtractAudio(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extracting audio: %w", err)
	}
	defer s.media.Cleanup(audioPath)

	segments, err := s.media.SplitAudio(ctx, audioPath, s.opts.SegmentSeconds)
	if err != nil {
		return nil, fmt.Errorf("splitting audio: %w", err)
	}
	if len(segments) > 0 {
		defer s.media.Cleanup(segments[0])
	}

	transcript, err := s.transcriber.TranscribeSegments(ctx, segments)
	if err != nil {
		return nil, fmt.Errorf("transcribing: %w", err)
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("%w: transcript of %s is empty", ErrEmptyText, meta.Filename)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	pdfPath := transcriptpdf.OutputPath(s.opts.TranscriptDir, base)
	if err := transcriptpdf.Render(transcript, "Transcript: "+base, pdfPath); err != nil {
		return nil, fmt.Errorf("rendering transcript pdf: %w", err)
	}

	result, err := s.index(ctx, transcript, meta, sourceID, document.KindVideo)
	if err != nil {
		return nil, err
	}
	result.TranscriptText = transcript
	result.TranscriptPDF = pdfPath

	s.logger.Info("ingested video",
		zap.String("source_id", result.SourceID),
		zap.String("filename", meta.Filename),
		zap.Int("chunks", result.Chunks),
		zap.Int("segments", len(segments)),
	)
	return result, nil
}

// processDocument extracts document text and indexes it.
func (s *Service) processDocument(ctx context.Context, kind document.Kind, path string, meta document.Metadata, sourceID string) (*Result, error) {
	text, err := s.extractText(ctx, kind, path)
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyText, meta.Filename)
	}

	result, err := s.index(ctx, text, meta, sourceID, kind)
	if err != nil {
		return nil, err
	}

	s.logger.Info("ingested document",
		zap.String("source_id", result.SourceID),
		zap.String("filename", meta.Filename),
		zap.String("kind", kind.String()),
		zap.Int("chunks", result.Chunks),
	)
	return result, nil
}

// index chunks the text and writes the chunk batch. Re-ingesting an existing
// source ID deletes its chunks first so a source is never half old, half new.
func (s *Service) index(ctx context.Context, text string, meta document.Metadata, sourceID string, kind document.Kind) (*Result, error) {
	replaced := 0
	if sourceID == "" {
		sourceID = s.newSourceID()
	} else {
		n, err := s.store.DeleteSource(ctx, sourceID)
		if err != nil {
			return nil, fmt.Errorf("replacing source %s: %w", sourceID, err)
		}
		replaced = n
	}

	passages := s.chunker.Split(text)
	if len(passages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyText, meta.Filename)
	}

	chunks := make([]document.Chunk, len(passages))
	for i, p := range passages {
		chunks[i] = document.Chunk{
			ID:       document.ChunkID(sourceID, i),
			Text:     p.Text,
			Metadata: document.ChunkMetadata(sourceID, meta, i, len(passages)),
		}
	}

	if _, err := s.store.AddChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("indexing chunks: %w", err)
	}

	return &Result{
		SourceID: sourceID,
		Kind:     kind,
		Chunks:   len(chunks),
		Replaced: replaced,
	}, nil
}

// Delete removes all chunks of a source and reports how many were removed.
func (s *Service) Delete(ctx context.Context, sourceID string) (int, error) {
	return s.store.DeleteSource(ctx, sourceID)
}
