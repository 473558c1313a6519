// Package transcribe turns audio into text via a Whisper-compatible
// speech-to-text service.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lectern/internal/config"
)

// ErrTranscriptionFailed indicates the speech-to-text service rejected or
// failed a request.
var ErrTranscriptionFailed = errors.New("transcription failed")

// Client calls a service implementing the OpenAI audio transcription API:
// POST {base_url}/v1/audio/transcriptions with a multipart file upload,
// responding {"text": "..."}. Self-hosted Whisper servers speak the same
// protocol.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a transcription client.
func NewClient(cfg config.TranscribeConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("transcribe base URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// TranscribeFile sends one audio file for transcription and returns its text.
func (c *Client) TranscribeFile(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("opening audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("reading audio file: %w", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("writing model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: status %d: %s", ErrTranscriptionFailed, resp.StatusCode, string(respBody))
	}

	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return strings.TrimSpace(tr.Text), nil
}

// TranscribeSegments transcribes a sequence of audio segments and joins the
// texts with single spaces. Segments the service cannot understand come back
// empty and are skipped rather than failing the whole transcript.
func (c *Client) TranscribeSegments(ctx context.Context, paths []string) (string, error) {
	parts := make([]string, 0, len(paths))
	for i, path := range paths {
		text, err := c.TranscribeFile(ctx, path)
		if err != nil {
			return "", fmt.Errorf("transcribing segment %d of %d: %w", i+1, len(paths), err)
		}
		if text == "" {
			c.logger.Warn("segment produced no text",
				zap.Int("segment", i),
				zap.String("path", path),
			)
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " "), nil
}
