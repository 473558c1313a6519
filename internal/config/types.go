// Package config provides configuration loading for lectern.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/lectern/internal/telemetry"
)

// Config is the root configuration for the daemon and CLI.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Chunker     ChunkerConfig     `koanf:"chunker"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Answer      AnswerConfig      `koanf:"answer"`
	Transcribe  TranscribeConfig  `koanf:"transcribe"`
	Media       MediaConfig       `koanf:"media"`
	Download    DownloadConfig    `koanf:"download"`
	Telemetry   telemetry.Config  `koanf:"telemetry"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Host is the listen address. Default: "0.0.0.0"
	Host string `koanf:"host"`

	// Port is the listen port. Default: 8080
	Port int `koanf:"port"`

	// ReadTimeout bounds request reads. Uploads can be large, so the
	// default is generous. Default: 10m
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout bounds response writes. Default: 10m
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxUploadBytes caps multipart upload size. Default: 2GiB
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: "info"
	Level string `koanf:"level"`

	// Format is "json" or "console". Default: "json"
	Format string `koanf:"format"`
}

// ChunkerConfig configures text splitting.
type ChunkerConfig struct {
	// Size is the target passage length in runes. Default: 500
	Size int `koanf:"size"`

	// Overlap is the shared region between neighbouring passages in
	// runes. Default: 50
	Overlap int `koanf:"overlap"`
}

// EmbeddingsConfig configures embedding generation.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "fastembed" (local ONNX model) or
	// "remote" (HTTP embedding service). Default: "fastembed"
	Provider string `koanf:"provider"`

	// Model is the embedding model name.
	// Default: "BAAI/bge-small-en-v1.5"
	Model string `koanf:"model"`

	// CacheDir stores downloaded model files.
	// Default: "~/.cache/lectern/models"
	CacheDir string `koanf:"cache_dir"`

	// Remote configures the HTTP embedding service used when
	// Provider is "remote".
	Remote RemoteEmbeddingsConfig `koanf:"remote"`
}

// RemoteEmbeddingsConfig configures an OpenAI-compatible embeddings endpoint.
type RemoteEmbeddingsConfig struct {
	// BaseURL is the service base URL, e.g. "http://localhost:8081/v1".
	BaseURL string `koanf:"base_url"`

	// APIKey authenticates requests. Optional for local services.
	APIKey string `koanf:"api_key"`

	// Timeout bounds a single embedding request. Default: 60s
	Timeout time.Duration `koanf:"timeout"`
}

// VectorStoreConfig configures chunk storage.
type VectorStoreConfig struct {
	// Provider selects the backend: "chromem" (embedded, default) or
	// "qdrant" (external server).
	Provider string `koanf:"provider"`

	// Collection is the chunk collection name. Default: "lectern_chunks"
	Collection string `koanf:"collection"`

	// VectorSize is the embedding dimension. Must match the embedding
	// model. Default: 384
	VectorSize int `koanf:"vector_size"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the persistence directory.
	// Default: "~/.local/share/lectern/vectorstore"
	Path string `koanf:"path"`

	// Compress enables gzip compression of stored data.
	Compress bool `koanf:"compress"`
}

// QdrantConfig configures the external Qdrant backend.
type QdrantConfig struct {
	// Host is the Qdrant hostname. Default: "localhost"
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port. Default: 6334
	Port int `koanf:"port"`

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `koanf:"use_tls"`
}

// RetrievalConfig configures semantic retrieval.
type RetrievalConfig struct {
	// NContext is the default number of chunks retrieved per question.
	// Default: 6
	NContext int `koanf:"n_context"`

	// MaxNContext caps caller-supplied n_context values. Default: 50
	MaxNContext int `koanf:"max_n_context"`
}

// AnswerConfig configures grounded answer generation.
type AnswerConfig struct {
	// Model is the Gemini model name. Default: "gemini-2.5-flash"
	Model string `koanf:"model"`

	// APIKey is the Google AI API key. Usually set via
	// LECTERN_ANSWER_API_KEY or GEMINI_API_KEY.
	APIKey string `koanf:"api_key"`

	// Timeout bounds a single generation request. Default: 2m
	Timeout time.Duration `koanf:"timeout"`
}

// TranscribeConfig configures the speech-to-text service.
type TranscribeConfig struct {
	// BaseURL is the Whisper-compatible service base URL.
	// Default: "http://localhost:9000"
	BaseURL string `koanf:"base_url"`

	// Model is the transcription model name. Default: "whisper-1"
	Model string `koanf:"model"`

	// Timeout bounds a single segment transcription. Default: 5m
	Timeout time.Duration `koanf:"timeout"`

	// SegmentSeconds is the audio segment length sent per request.
	// Default: 30
	SegmentSeconds int `koanf:"segment_seconds"`
}

// MediaConfig configures audio extraction from video.
type MediaConfig struct {
	// FFmpegPath is the ffmpeg binary. Default: "ffmpeg" (from PATH)
	FFmpegPath string `koanf:"ffmpeg_path"`

	// WorkDir holds temporary audio files. Default: os.TempDir()
	WorkDir string `koanf:"work_dir"`
}

// DownloadConfig configures URL ingestion.
type DownloadConfig struct {
	// YTDLPPath is the yt-dlp binary used for streaming sites.
	// Default: "yt-dlp" (from PATH)
	YTDLPPath string `koanf:"ytdlp_path"`

	// Timeout bounds a single download. Default: 30m
	Timeout time.Duration `koanf:"timeout"`
}

// applyDefaults fills unset fields with defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Minute
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 2 << 30
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 500
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 50
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.CacheDir == "" {
		cfg.Embeddings.CacheDir = "~/.cache/lectern/models"
	}
	if cfg.Embeddings.Remote.Timeout == 0 {
		cfg.Embeddings.Remote.Timeout = 60 * time.Second
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "lectern_chunks"
	}
	if cfg.VectorStore.VectorSize == 0 {
		cfg.VectorStore.VectorSize = 384
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.local/share/lectern/vectorstore"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}

	if cfg.Retrieval.NContext == 0 {
		cfg.Retrieval.NContext = 6
	}
	if cfg.Retrieval.MaxNContext == 0 {
		cfg.Retrieval.MaxNContext = 50
	}

	if cfg.Answer.Model == "" {
		cfg.Answer.Model = "gemini-2.5-flash"
	}
	if cfg.Answer.Timeout == 0 {
		cfg.Answer.Timeout = 2 * time.Minute
	}

	if cfg.Transcribe.BaseURL == "" {
		cfg.Transcribe.BaseURL = "http://localhost:9000"
	}
	if cfg.Transcribe.Model == "" {
		cfg.Transcribe.Model = "whisper-1"
	}
	if cfg.Transcribe.Timeout == 0 {
		cfg.Transcribe.Timeout = 5 * time.Minute
	}
	if cfg.Transcribe.SegmentSeconds == 0 {
		cfg.Transcribe.SegmentSeconds = 30
	}

	if cfg.Media.FFmpegPath == "" {
		cfg.Media.FFmpegPath = "ffmpeg"
	}

	if cfg.Download.YTDLPPath == "" {
		cfg.Download.YTDLPPath = "yt-dlp"
	}
	if cfg.Download.Timeout == 0 {
		cfg.Download.Timeout = 30 * time.Minute
	}

	def := telemetry.NewDefaultConfig()
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = def.Endpoint
		// Plaintext is only the default for the local collector.
		cfg.Telemetry.Insecure = def.Insecure
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = def.Protocol
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = def.ServiceName
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = def.ServiceVersion
	}
	if cfg.Telemetry.Sampling.Rate == 0 {
		cfg.Telemetry.Sampling.Rate = def.Sampling.Rate
	}
	if cfg.Telemetry.Metrics.ExportInterval == 0 {
		cfg.Telemetry.Metrics = def.Metrics
	}
	if cfg.Telemetry.Shutdown.Timeout == 0 {
		cfg.Telemetry.Shutdown = def.Shutdown
	}
}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1-65535, got %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Chunker.Size <= 0 {
		return fmt.Errorf("chunker.size must be positive, got %d", c.Chunker.Size)
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("chunker.overlap must be in [0, size), got %d", c.Chunker.Overlap)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "remote":
	default:
		return fmt.Errorf("embeddings.provider must be fastembed or remote, got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "remote" && c.Embeddings.Remote.BaseURL == "" {
		return fmt.Errorf("embeddings.remote.base_url is required for the remote provider")
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("vectorstore.provider must be chromem or qdrant, got %q", c.VectorStore.Provider)
	}
	if c.VectorStore.VectorSize <= 0 {
		return fmt.Errorf("vectorstore.vector_size must be positive, got %d", c.VectorStore.VectorSize)
	}

	if c.Retrieval.NContext <= 0 {
		return fmt.Errorf("retrieval.n_context must be positive, got %d", c.Retrieval.NContext)
	}
	if c.Retrieval.NContext > c.Retrieval.MaxNContext {
		return fmt.Errorf("retrieval.n_context %d exceeds retrieval.max_n_context %d",
			c.Retrieval.NContext, c.Retrieval.MaxNContext)
	}

	if c.Transcribe.SegmentSeconds <= 0 {
		return fmt.Errorf("transcribe.segment_seconds must be positive, got %d", c.Transcribe.SegmentSeconds)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}
