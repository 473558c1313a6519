package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/lectern/internal/config"
)

func TestNewProcessor_Defaults(t *testing.T) {
	p := NewProcessor(config.MediaConfig{}, nil)

	assert.Equal(t, "ffmpeg", p.ffmpegPath)
	assert.Equal(t, os.TempDir(), p.workDir)
	assert.NotNil(t, p.logger)
}

func TestExtractAudio_MissingBinary(t *testing.T) {
	p := NewProcessor(config.MediaConfig{
		FFmpegPath: filepath.Join(t.TempDir(), "no-such-ffmpeg"),
		WorkDir:    t.TempDir(),
	}, nil)

	_, err := p.ExtractAudio(context.Background(), "lecture.mp4")
	assert.Error(t, err)
}

func TestSplitAudio_MissingBinary(t *testing.T) {
	p := NewProcessor(config.MediaConfig{
		FFmpegPath: filepath.Join(t.TempDir(), "no-such-ffmpeg"),
		WorkDir:    t.TempDir(),
	}, nil)

	_, err := p.SplitAudio(context.Background(), "audio.wav", 30)
	assert.Error(t, err)
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "lectern-audio-x")
	require.NoError(t, os.Mkdir(sub, 0o755))
	path := filepath.Join(sub, "out.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))

	p := NewProcessor(config.MediaConfig{WorkDir: dir}, nil)
	p.Cleanup(path)

	_, err := os.Stat(sub)
	assert.True(t, os.IsNotExist(err))
}
