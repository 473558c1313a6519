// Lecternd is the course-material ingestion and Q&A daemon.
//
// This binary starts the lectern HTTP server with full pipeline
// initialization: embeddings, vector store, transcription, download and
// grounded answer generation.
//
// Configuration is loaded from a YAML file plus LECTERN_* environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	lecternd
//
//	# Configure via environment
//	LECTERN_SERVER_PORT=8000 LECTERN_VECTORSTORE_PROVIDER=qdrant lecternd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lectern/internal/answer"
	"github.com/fyrsmithlabs/lectern/internal/chunker"
	"github.com/fyrsmithlabs/lectern/internal/config"
	"github.com/fyrsmithlabs/lectern/internal/download"
	"github.com/fyrsmithlabs/lectern/internal/embeddings"
	lecternhttp "github.com/fyrsmithlabs/lectern/internal/http"
	"github.com/fyrsmithlabs/lectern/internal/ingest"
	"github.com/fyrsmithlabs/lectern/internal/logging"
	"github.com/fyrsmithlabs/lectern/internal/media"
	"github.com/fyrsmithlabs/lectern/internal/retriever"
	"github.com/fyrsmithlabs/lectern/internal/telemetry"
	"github.com/fyrsmithlabs/lectern/internal/transcribe"
	"github.com/fyrsmithlabs/lectern/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	args := flag.Args()

	// Handle subcommands
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  lecternd           Start the lectern daemon\n")
			fmt.Fprintf(os.Stderr, "  lecternd version   Show version information\n")
			os.Exit(1)
		}
	}

	// Best-effort .env loading, matching local development workflows.
	_ = godotenv.Load()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("lecternd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the lectern server and blocks until context is cancelled.
//
// This function initializes all dependencies and services:
//  1. Loads and validates configuration
//  2. Initializes logger
//  3. Creates the embedding provider and vector store
//  4. Wires the ingestion pipeline (media, transcription, download)
//  5. Wires retrieval and grounded answer generation
//  6. Starts the HTTP server
//  7. Performs graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logging.Sync(logger)

	logger.Info("Starting lecternd",
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	tel, err := telemetry.New(ctx, &cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	embedder, err := embeddings.NewProvider(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("failed to initialize embeddings: %w", err)
	}
	defer embedder.Close()

	store, err := vectorstore.NewStore(cfg, embedder, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer store.Close()

	ch, err := chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		return fmt.Errorf("failed to initialize chunker: %w", err)
	}

	transcriber, err := transcribe.NewClient(cfg.Transcribe, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize transcription client: %w", err)
	}

	ingestor, err := ingest.NewService(
		store,
		ch,
		media.NewProcessor(cfg.Media, logger),
		transcriber,
		download.New(cfg.Download, logger),
		ingest.Options{SegmentSeconds: cfg.Transcribe.SegmentSeconds},
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize ingestion: %w", err)
	}

	ret, err := retriever.New(store, cfg.Retrieval, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize retriever: %w", err)
	}

	// Without an API key the daemon still ingests and retrieves; only the
	// qa endpoint reports the missing key.
	var generator answer.Generator
	generator, err = answer.NewGeminiGenerator(ctx, cfg.Answer)
	if err != nil {
		if !errors.Is(err, answer.ErrMissingAPIKey) {
			return fmt.Errorf("failed to initialize answer generator: %w", err)
		}
		logger.Warn("answer generation disabled", zap.Error(err))
		generator = unavailableGenerator{err: err}
	}

	assembler, err := answer.NewAssembler(ret, generator, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize answer assembler: %w", err)
	}

	srv, err := lecternhttp.NewServer(ingestor, assembler, ret, store, logger, &lecternhttp.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// unavailableGenerator stands in for Gemini when no API key is configured.
type unavailableGenerator struct {
	err error
}

func (g unavailableGenerator) Generate(context.Context, string) (string, error) {
	return "", g.err
}
