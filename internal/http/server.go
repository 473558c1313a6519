// Package http provides the HTTP API for lecternd.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lectern/internal/answer"
	"github.com/fyrsmithlabs/lectern/internal/document"
	"github.com/fyrsmithlabs/lectern/internal/ingest"
	"github.com/fyrsmithlabs/lectern/internal/retriever"
	"github.com/fyrsmithlabs/lectern/internal/vectorstore"
)

// Ingestor runs the upload pipeline for the transcribe endpoint.
type Ingestor interface {
	ProcessUpload(ctx context.Context, input string, meta document.Metadata, sourceID string) (*ingest.Result, error)
	Delete(ctx context.Context, sourceID string) (int, error)
}

// Asker answers student questions for the qa endpoint.
type Asker interface {
	Ask(ctx context.Context, question string, opts retriever.Options) (*answer.Answer, error)
}

// Searcher retrieves raw passages for the query endpoint.
type Searcher interface {
	Retrieve(ctx context.Context, question string, opts retriever.Options) ([]vectorstore.Result, error)
}

// Server provides HTTP endpoints for lecternd.
type Server struct {
	echo     *echo.Echo
	ingestor Ingestor
	asker    Asker
	searcher Searcher
	store    vectorstore.Store
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	MaxUploadBytes int64
}

// NewServer creates a new HTTP server.
func NewServer(ingestor Ingestor, asker Asker, searcher Searcher, store vectorstore.Store, logger *zap.Logger, cfg *Config) (*Server, error) {
	if ingestor == nil {
		return nil, fmt.Errorf("ingestor cannot be nil")
	}
	if asker == nil {
		return nil, fmt.Errorf("asker cannot be nil")
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8000,
		}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 2 << 30
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.MaxUploadBytes, 10)))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s := &Server{
		echo:     e,
		ingestor: ingestor,
		asker:    asker,
		searcher: searcher,
		store:    store,
		logger:   logger,
		config:   cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check and metrics
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.POST("/transcribe", s.handleTranscribe)
	v1.POST("/qa", s.handleQA)
	v1.POST("/query", s.handleQuery)
	v1.GET("/chunks", s.handleChunks)
	v1.DELETE("/sources/:id", s.handleDeleteSource)
}

// TranscribeResponse is the response body for POST /api/v1/transcribe.
type TranscribeResponse struct {
	Success           bool   `json:"success"`
	SourceID          string `json:"source_id,omitempty"`
	Kind              string `json:"kind,omitempty"`
	Chunks            int    `json:"chunks,omitempty"`
	Replaced          int    `json:"replaced,omitempty"`
	TranscriptPreview string `json:"transcript_preview,omitempty"`
	TranscriptPDF     string `json:"transcript_pdf,omitempty"`
	Error             string `json:"error,omitempty"`
}

// QARequest is the request body for POST /api/v1/qa.
type QARequest struct {
	Question  string `json:"question" form:"question"`
	NContext  int    `json:"n_context" form:"n_context"`
	VideoID   string `json:"video_id" form:"video_id"`
	SubjectID string `json:"subject_id" form:"subject_id"`
	ChapterID string `json:"chapter_id" form:"chapter_id"`
	UserID    string `json:"user_id" form:"user_id"`
}

// QAResponse is the response body for POST /api/v1/qa.
type QAResponse struct {
	Success      bool             `json:"success"`
	Answer       string           `json:"answer,omitempty"`
	PassagesUsed []answer.Passage `json:"passages_used,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// QueryResponse is the response body for POST /api/v1/query.
type QueryResponse struct {
	Results []vectorstore.Result `json:"results"`
	Count   int                  `json:"count"`
}

// ChunksResponse is the response body for GET /api/v1/chunks.
type ChunksResponse struct {
	IDs       []string            `json:"ids"`
	Documents []string            `json:"documents"`
	Metadatas []map[string]string `json:"metadatas"`
	Count     int                 `json:"count"`
}

// DeleteSourceResponse is the response body for DELETE /api/v1/sources/:id.
type DeleteSourceResponse struct {
	Success bool   `json:"success"`
	Deleted int    `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleTranscribe ingests an uploaded file or a remote URL.
//
// The request is multipart form data with either a "file" part or a "url"
// field, plus optional metadata fields. Re-posting an existing source_id
// replaces that source's chunks.
func (s *Server) handleTranscribe(c echo.Context) error {
	meta := document.Metadata{
		VideoID:   c.FormValue("video_id"),
		Subject:   c.FormValue("subject"),
		SubjectID: c.FormValue("subject_id"),
		Chapter:   c.FormValue("chapter"),
		ChapterID: c.FormValue("chapter_id"),
		Part:      c.FormValue("part"),
		UserID:    c.FormValue("user_id"),
	}
	sourceID := c.FormValue("source_id")

	input := c.FormValue("url")
	if input == "" {
		fh, err := c.FormFile("file")
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "either a file upload or a url field is required")
		}
		path, cleanup, err := s.saveUpload(fh)
		if err != nil {
			s.logger.Error("failed to save upload", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to store uploaded file")
		}
		defer cleanup()
		meta.Filename = filepath.Base(fh.Filename)
		input = path
	}

	result, err := s.ingestor.ProcessUpload(c.Request().Context(), input, meta, sourceID)
	if err != nil {
		s.logger.Warn("ingestion failed", zap.String("input", input), zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, ingest.ErrUnsupportedFileType) || errors.Is(err, ingest.ErrEmptyText) {
			status = http.StatusBadRequest
		}
		return c.JSON(status, TranscribeResponse{Success: false, Error: err.Error()})
	}

	return c.JSON(http.StatusOK, TranscribeResponse{
		Success:           true,
		SourceID:          result.SourceID,
		Kind:              result.Kind.String(),
		Chunks:            result.Chunks,
		Replaced:          result.Replaced,
		TranscriptPreview: preview(result.TranscriptText, 500),
		TranscriptPDF:     result.TranscriptPDF,
	})
}

// handleQA answers a question from indexed course material.
//
// Generation failures are reported in the response body, not as transport
// errors: the endpoint always answers 200 once the request itself is valid.
func (s *Server) handleQA(c echo.Context) error {
	var req QARequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid qa request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	ans, err := s.asker.Ask(c.Request().Context(), req.Question, retriever.Options{
		N:         req.NContext,
		VideoID:   req.VideoID,
		SubjectID: req.SubjectID,
		ChapterID: req.ChapterID,
		UserID:    req.UserID,
	})
	if err != nil {
		s.logger.Warn("answer generation failed", zap.Error(err))
		return c.JSON(http.StatusOK, QAResponse{Success: false, Error: err.Error()})
	}

	return c.JSON(http.StatusOK, QAResponse{
		Success:      true,
		Answer:       ans.Answer,
		PassagesUsed: ans.Passages,
	})
}

// handleQuery retrieves raw passages without answer generation.
func (s *Server) handleQuery(c echo.Context) error {
	var req QARequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid query request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	results, err := s.searcher.Retrieve(c.Request().Context(), req.Question, retriever.Options{
		N:         req.NContext,
		VideoID:   req.VideoID,
		SubjectID: req.SubjectID,
		ChapterID: req.ChapterID,
		UserID:    req.UserID,
	})
	if err != nil {
		s.logger.Error("retrieval failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "retrieval failed")
	}

	if results == nil {
		results = []vectorstore.Result{}
	}
	return c.JSON(http.StatusOK, QueryResponse{Results: results, Count: len(results)})
}

// handleChunks lists every indexed chunk.
func (s *Server) handleChunks(c echo.Context) error {
	chunks, err := s.store.ListAll(c.Request().Context())
	if err != nil {
		s.logger.Error("failed to list chunks", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list chunks")
	}

	resp := ChunksResponse{
		IDs:       make([]string, 0, len(chunks)),
		Documents: make([]string, 0, len(chunks)),
		Metadatas: make([]map[string]string, 0, len(chunks)),
		Count:     len(chunks),
	}
	for _, ch := range chunks {
		resp.IDs = append(resp.IDs, ch.ID)
		resp.Documents = append(resp.Documents, ch.Text)
		resp.Metadatas = append(resp.Metadatas, ch.Metadata)
	}

	return c.JSON(http.StatusOK, resp)
}

// handleDeleteSource removes every chunk of one source.
func (s *Server) handleDeleteSource(c echo.Context) error {
	sourceID := c.Param("id")
	if sourceID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "source id is required")
	}

	deleted, err := s.ingestor.Delete(c.Request().Context(), sourceID)
	if err != nil {
		s.logger.Error("failed to delete source", zap.String("source_id", sourceID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, DeleteSourceResponse{Success: false, Error: err.Error()})
	}

	return c.JSON(http.StatusOK, DeleteSourceResponse{Success: true, Deleted: deleted})
}

// saveUpload copies a multipart file into a temp directory, preserving the
// client extension so kind detection works on the stored path.
func (s *Server) saveUpload(fh *multipart.FileHeader) (string, func(), error) {
	src, err := fh.Open()
	if err != nil {
		return "", nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	dir, err := os.MkdirTemp("", "lectern-upload-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	path := filepath.Join(dir, filepath.Base(fh.Filename))
	dst, err := os.Create(path)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write upload file: %w", err)
	}

	return path, cleanup, nil
}

// preview truncates text for the ingestion response.
func preview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
