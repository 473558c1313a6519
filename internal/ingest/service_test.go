package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lectern/internal/chunker"
	"github.com/fyrsmithlabs/lectern/internal/document"
	"github.com/fyrsmithlabs/lectern/internal/vectorstore"
)

// memStore is an in-memory Store capturing added chunks.
type memStore struct {
	chunks    map[string]document.Chunk
	addErr    error
	deleteErr error
}

func newMemStore() *memStore {
	return &memStore{chunks: make(map[string]document.Chunk)}
}

func (m *memStore) AddChunks(ctx context.Context, chunks []document.Chunk) ([]string, error) {
	if m.addErr != nil {
		return nil, m.addErr
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		m.chunks[c.ID] = c
		ids[i] = c.ID
	}
	return ids, nil
}

func (m *memStore) Query(ctx context.Context, text string, k int, filters map[string]string) ([]vectorstore.Result, error) {
	return nil, nil
}

func (m *memStore) ListAll(ctx context.Context) ([]document.Chunk, error) {
	out := make([]document.Chunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	n := 0
	for id, c := range m.chunks {
		if c.Metadata[document.KeySourceID] == sourceID {
			delete(m.chunks, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) Count(ctx context.Context) (int, error) { return len(m.chunks), nil }
func (m *memStore) Close() error                           { return nil }

// fakeMedia fakes ffmpeg work.
type fakeMedia struct {
	segments []string
	err      error
}

func (f *fakeMedia) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/audio/fake_audio.wav", nil
}

func (f *fakeMedia) SplitAudio(ctx context.Context, audioPath string, segmentSeconds int) ([]string, error) {
	return f.segments, nil
}

func (f *fakeMedia) Cleanup(path string) {}

// fakeTranscriber returns a fixed transcript.
type fakeTranscriber struct {
	transcript string
	err        error
}

func (f *fakeTranscriber) TranscribeSegments(ctx context.Context, paths []string) (string, error) {
	return f.transcript, f.err
}

// fakeFetcher resolves URLs to a fixed local path.
type fakeFetcher struct {
	path string
	err  error
	url  string
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL, dir string) (string, error) {
	f.url = rawURL
	return f.path, f.err
}

func newService(t *testing.T, store vectorstore.Store, media AudioExtractor, tr Transcriber, fetch Fetcher) *Service {
	t.Helper()
	ch, err := chunker.New(100, 10)
	require.NoError(t, err)

	s, err := NewService(store, ch, media, tr, fetch, Options{
		TranscriptDir: t.TempDir(),
		DownloadDir:   t.TempDir(),
	}, zap.NewNop())
	require.NoError(t, err)

	n := 0
	s.newSourceID = func() string { n++; return "gen-id" }
	return s
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestProcessUpload_Document(t *testing.T) {
	store := newMemStore()
	s := newService(t, store, nil, nil, nil)
	s.extractText = func(ctx context.Context, kind document.Kind, path string) (string, error) {
		assert.Equal(t, document.KindPDF, kind)
		return strings.Repeat("cells divide by mitosis ", 20), nil
	}

	path := writeFixture(t, "biology.pdf", "%PDF fake")
	meta := document.Metadata{Subject: "Biology", SubjectID: "bio-1", UserID: "u-1"}

	result, err := s.ProcessUpload(context.Background(), path, meta, "")
	require.NoError(t, err)

	assert.Equal(t, "gen-id", result.SourceID)
	assert.Equal(t, document.KindPDF, result.Kind)
	assert.Greater(t, result.Chunks, 1)
	assert.Zero(t, result.Replaced)
	assert.Empty(t, result.TranscriptText)

	first, ok := store.chunks["gen-id_0"]
	require.True(t, ok)
	assert.Equal(t, "pdf", first.Metadata[document.KeyFileType])
	assert.Equal(t, "biology.pdf", first.Metadata[document.KeyFilename])
	assert.Equal(t, "Biology", first.Metadata[document.KeySubject])
	assert.Equal(t, "u-1", first.Metadata[document.KeyUserID])
	assert.Equal(t, "0", first.Metadata[document.KeyChunkIndex])
}

func TestProcessUpload_Video(t *testing.T) {
	store := newMemStore()
	media := &fakeMedia{segments: []string{"seg0.wav", "seg1.wav"}}
	tr := &fakeTranscriber{transcript: strings.Repeat("today we learn about waves ", 15)}
	s := newService(t, store, media, tr, nil)

	path := writeFixture(t, "week1.mp4", "fake video")
	meta := document.Metadata{VideoID: "vid-1", Subject: "Physics"}

	result, err := s.ProcessUpload(context.Background(), path, meta, "")
	require.NoError(t, err)

	assert.Equal(t, document.KindVideo, result.Kind)
	assert.NotEmpty(t, result.TranscriptText)
	assert.FileExists(t, result.TranscriptPDF)
	assert.Greater(t, result.Chunks, 0)

	first := store.chunks["gen-id_0"]
	assert.Equal(t, "video", first.Metadata[document.KeyFileType])
	assert.Equal(t, "vid-1", first.Metadata[document.KeyVideoID])
	assert.Equal(t, "week1.mp4", first.Metadata[document.KeyFilename])
}

func TestProcessUpload_VideoEmptyTranscript(t *testing.T) {
	s := newService(t, newMemStore(), &fakeMedia{segments: []string{"seg0.wav"}},
		&fakeTranscriber{transcript: "   "}, nil)

	path := writeFixture(t, "silent.mp4", "fake video")
	_, err := s.ProcessUpload(context.Background(), path, document.Metadata{}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestProcessUpload_EmptyDocument(t *testing.T) {
	s := newService(t, newMemStore(), nil, nil, nil)
	s.extractText = func(ctx context.Context, kind document.Kind, path string) (string, error) {
		return "", nil
	}

	path := writeFixture(t, "scanned.pdf", "%PDF fake")
	_, err := s.ProcessUpload(context.Background(), path, document.Metadata{}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestProcessUpload_UnsupportedType(t *testing.T) {
	s := newService(t, newMemStore(), nil, nil, nil)

	path := writeFixture(t, "data.csv", "a,b,c")
	_, err := s.ProcessUpload(context.Background(), path, document.Metadata{}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
}

func TestProcessUpload_URL(t *testing.T) {
	store := newMemStore()
	local := writeFixture(t, "downloaded.pdf", "%PDF fake")
	fetch := &fakeFetcher{path: local}
	s := newService(t, store, nil, nil, fetch)
	s.extractText = func(ctx context.Context, kind document.Kind, path string) (string, error) {
		return strings.Repeat("downloaded course notes ", 20), nil
	}

	result, err := s.ProcessUpload(context.Background(), "https://example.com/notes.pdf", document.Metadata{}, "")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/notes.pdf", fetch.url)
	assert.Equal(t, "downloaded.pdf", store.chunks[result.SourceID+"_0"].Metadata[document.KeyFilename])
}

func TestProcessUpload_URLWithoutFetcher(t *testing.T) {
	s := newService(t, newMemStore(), nil, nil, nil)

	_, err := s.ProcessUpload(context.Background(), "https://example.com/notes.pdf", document.Metadata{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestProcessUpload_ReplaceExistingSource(t *testing.T) {
	store := newMemStore()
	s := newService(t, store, nil, nil, nil)
	s.extractText = func(ctx context.Context, kind document.Kind, path string) (string, error) {
		return strings.Repeat("original text version one ", 20), nil
	}

	path := writeFixture(t, "notes.pdf", "%PDF fake")
	first, err := s.ProcessUpload(context.Background(), path, document.Metadata{}, "")
	require.NoError(t, err)
	require.Greater(t, first.Chunks, 0)

	s.extractText = func(ctx context.Context, kind document.Kind, path string) (string, error) {
		return "short revised text", nil
	}
	second, err := s.ProcessUpload(context.Background(), path, document.Metadata{}, first.SourceID)
	require.NoError(t, err)

	assert.Equal(t, first.SourceID, second.SourceID)
	assert.Equal(t, first.Chunks, second.Replaced)
	assert.Equal(t, 1, second.Chunks)

	// Only the new version remains.
	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDelete(t *testing.T) {
	store := newMemStore()
	s := newService(t, store, nil, nil, nil)
	s.extractText = func(ctx context.Context, kind document.Kind, path string) (string, error) {
		return strings.Repeat("to be deleted ", 30), nil
	}

	path := writeFixture(t, "notes.pdf", "%PDF fake")
	result, err := s.ProcessUpload(context.Background(), path, document.Metadata{}, "")
	require.NoError(t, err)

	n, err := s.Delete(context.Background(), result.SourceID)
	require.NoError(t, err)
	assert.Equal(t, result.Chunks, n)

	n, err = s.Delete(context.Background(), result.SourceID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
