// Package media extracts and segments audio from video files with ffmpeg.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lectern/internal/config"
)

// Processor shells out to ffmpeg for audio work. ffmpeg is the one external
// binary the ingestion pipeline requires for video sources.
type Processor struct {
	ffmpegPath string
	workDir    string
	logger     *zap.Logger
}

// NewProcessor creates a Processor. workDir defaults to the OS temp dir.
func NewProcessor(cfg config.MediaConfig, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Processor{ffmpegPath: ffmpegPath, workDir: workDir, logger: logger}
}

// ExtractAudio pulls the audio track of a video into a 16kHz mono WAV file,
// the format speech-to-text services expect. Returns the WAV path.
func (p *Processor) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	dir, err := os.MkdirTemp(p.workDir, "lectern-audio-*")
	if err != nil {
		return "", fmt.Errorf("creating audio work dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	outPath := filepath.Join(dir, base+"_audio.wav")

	args := []string{
		"-y", "-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		outPath,
	}
	if err := p.runFFmpeg(ctx, args); err != nil {
		return "", fmt.Errorf("extracting audio from %s: %w", videoPath, err)
	}

	p.logger.Debug("extracted audio",
		zap.String("video", videoPath),
		zap.String("audio", outPath),
	)
	return outPath, nil
}

// SplitAudio cuts an audio file into fixed-length WAV segments for
// transcription APIs with per-request length limits. Returns segment paths in
// playback order.
func (p *Processor) SplitAudio(ctx context.Context, audioPath string, segmentSeconds int) ([]string, error) {
	if segmentSeconds <= 0 {
		return nil, fmt.Errorf("segment length must be positive, got %d", segmentSeconds)
	}

	dir, err := os.MkdirTemp(p.workDir, "lectern-segments-*")
	if err != nil {
		return nil, fmt.Errorf("creating segment work dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	pattern := filepath.Join(dir, base+"_segment_%04d.wav")

	args := []string{
		"-y", "-i", audioPath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-c", "copy",
		pattern,
	}
	if err := p.runFFmpeg(ctx, args); err != nil {
		return nil, fmt.Errorf("splitting audio %s: %w", audioPath, err)
	}

	segments, err := filepath.Glob(filepath.Join(dir, base+"_segment_*.wav"))
	if err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no segments for %s", audioPath)
	}
	sort.Strings(segments)

	p.logger.Debug("split audio into segments",
		zap.String("audio", audioPath),
		zap.Int("segments", len(segments)),
		zap.Int("segment_seconds", segmentSeconds),
	)
	return segments, nil
}

// Cleanup removes the work directory holding a produced file or segment set.
func (p *Processor) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		p.logger.Warn("cleaning up media work dir", zap.String("path", path), zap.Error(err))
	}
}

func (p *Processor) runFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// ffmpeg writes diagnostics to stderr; keep the tail for the error.
		msg := stderr.String()
		if len(msg) > 1024 {
			msg = msg[len(msg)-1024:]
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(msg))
	}
	return nil
}
