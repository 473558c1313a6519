package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lectern/internal/answer"
	"github.com/fyrsmithlabs/lectern/internal/document"
	"github.com/fyrsmithlabs/lectern/internal/ingest"
	"github.com/fyrsmithlabs/lectern/internal/retriever"
	"github.com/fyrsmithlabs/lectern/internal/vectorstore"
)

type fakeIngestor struct {
	lastInput    string
	lastMeta     document.Metadata
	lastSourceID string
	result       *ingest.Result
	err          error

	deleted   string
	deleteN   int
	deleteErr error
}

func (f *fakeIngestor) ProcessUpload(_ context.Context, input string, meta document.Metadata, sourceID string) (*ingest.Result, error) {
	f.lastInput = input
	f.lastMeta = meta
	f.lastSourceID = sourceID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeIngestor) Delete(_ context.Context, sourceID string) (int, error) {
	f.deleted = sourceID
	return f.deleteN, f.deleteErr
}

type fakeAsker struct {
	lastQuestion string
	lastOpts     retriever.Options
	answer       *answer.Answer
	err          error
}

func (f *fakeAsker) Ask(_ context.Context, question string, opts retriever.Options) (*answer.Answer, error) {
	f.lastQuestion = question
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

type fakeSearcher struct {
	lastQuestion string
	lastOpts     retriever.Options
	results      []vectorstore.Result
	err          error
}

func (f *fakeSearcher) Retrieve(_ context.Context, question string, opts retriever.Options) ([]vectorstore.Result, error) {
	f.lastQuestion = question
	f.lastOpts = opts
	return f.results, f.err
}

type fakeStore struct {
	chunks  []document.Chunk
	listErr error
}

func (f *fakeStore) AddChunks(context.Context, []document.Chunk) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) Query(context.Context, string, int, map[string]string) ([]vectorstore.Result, error) {
	return nil, nil
}

func (f *fakeStore) ListAll(context.Context) ([]document.Chunk, error) {
	return f.chunks, f.listErr
}

func (f *fakeStore) DeleteSource(context.Context, string) (int, error) { return 0, nil }
func (f *fakeStore) Count(context.Context) (int, error)               { return len(f.chunks), nil }
func (f *fakeStore) Close() error                                     { return nil }

func setupTestServer(t *testing.T, ingestor *fakeIngestor, asker *fakeAsker, store *fakeStore) *Server {
	t.Helper()
	return setupTestServerWithSearcher(t, ingestor, asker, &fakeSearcher{}, store)
}

func setupTestServerWithSearcher(t *testing.T, ingestor *fakeIngestor, asker *fakeAsker, searcher *fakeSearcher, store *fakeStore) *Server {
	t.Helper()

	if ingestor == nil {
		ingestor = &fakeIngestor{result: &ingest.Result{SourceID: "src-1"}}
	}
	if asker == nil {
		asker = &fakeAsker{answer: &answer.Answer{Answer: "ok"}}
	}
	if store == nil {
		store = &fakeStore{}
	}

	server, err := NewServer(ingestor, asker, searcher, store, zap.NewNop(), nil)
	require.NoError(t, err)
	return server
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName, fileContent string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = part.Write([]byte(fileContent))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid dependencies", func(t *testing.T) {
		server := setupTestServer(t, nil, nil, nil)
		assert.NotNil(t, server.echo)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8000, server.config.Port)
	})

	t.Run("returns error when ingestor is nil", func(t *testing.T) {
		_, err := NewServer(nil, &fakeAsker{}, &fakeSearcher{}, &fakeStore{}, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "ingestor cannot be nil")
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&fakeIngestor{}, &fakeAsker{}, &fakeSearcher{}, &fakeStore{}, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	err := json.Unmarshal(rec.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleMetrics(t *testing.T) {
	server := setupTestServer(t, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHandleTranscribe(t *testing.T) {
	t.Run("ingests uploaded file with metadata", func(t *testing.T) {
		ingestor := &fakeIngestor{result: &ingest.Result{
			SourceID: "src-1",
			Kind:     document.KindPDF,
			Chunks:   4,
		}}
		server := setupTestServer(t, ingestor, nil, nil)

		body, contentType := multipartBody(t, map[string]string{
			"subject":    "Physics",
			"subject_id": "phy-1",
			"chapter":    "Motion",
			"user_id":    "u-9",
		}, "file", "notes.pdf", "%PDF-1.4 fake")

		req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp TranscribeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "src-1", resp.SourceID)
		assert.Equal(t, "pdf", resp.Kind)
		assert.Equal(t, 4, resp.Chunks)

		assert.Equal(t, "notes.pdf", ingestor.lastMeta.Filename)
		assert.Equal(t, "Physics", ingestor.lastMeta.Subject)
		assert.Equal(t, "u-9", ingestor.lastMeta.UserID)
		assert.True(t, strings.HasSuffix(ingestor.lastInput, "notes.pdf"))
	})

	t.Run("ingests url without file part", func(t *testing.T) {
		ingestor := &fakeIngestor{result: &ingest.Result{SourceID: "src-2", Kind: document.KindVideo, Chunks: 10}}
		server := setupTestServer(t, ingestor, nil, nil)

		body, contentType := multipartBody(t, map[string]string{
			"url":      "https://youtube.com/watch?v=abc",
			"video_id": "vid-1",
		}, "", "", "")

		req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://youtube.com/watch?v=abc", ingestor.lastInput)
		assert.Equal(t, "vid-1", ingestor.lastMeta.VideoID)
	})

	t.Run("passes source_id for replacement", func(t *testing.T) {
		ingestor := &fakeIngestor{result: &ingest.Result{SourceID: "keep-me", Chunks: 2, Replaced: 5}}
		server := setupTestServer(t, ingestor, nil, nil)

		body, contentType := multipartBody(t, map[string]string{
			"source_id": "keep-me",
		}, "file", "v2.docx", "updated")

		req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "keep-me", ingestor.lastSourceID)

		var resp TranscribeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 5, resp.Replaced)
	})

	t.Run("rejects request with neither file nor url", func(t *testing.T) {
		server := setupTestServer(t, nil, nil, nil)

		body, contentType := multipartBody(t, map[string]string{"subject": "Math"}, "", "", "")

		req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps input errors to 400", func(t *testing.T) {
		ingestor := &fakeIngestor{err: fmt.Errorf("%w: .csv", ingest.ErrUnsupportedFileType)}
		server := setupTestServer(t, ingestor, nil, nil)

		body, contentType := multipartBody(t, nil, "file", "data.csv", "a,b")

		req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp TranscribeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "unsupported file type")
	})
}

func TestHandleQA(t *testing.T) {
	t.Run("answers question with retrieval options", func(t *testing.T) {
		asker := &fakeAsker{answer: &answer.Answer{
			Answer: "Velocity is the rate of change of position.",
			Passages: []answer.Passage{
				{Text: "velocity...", Metadata: map[string]string{"filename": "week1.mp4"}, Distance: 0.12},
			},
		}}
		server := setupTestServer(t, nil, asker, nil)

		body := `{"question":"What is velocity?","n_context":3,"video_id":"vid-1"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/qa", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp QAResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "Velocity is the rate of change of position.", resp.Answer)
		require.Len(t, resp.PassagesUsed, 1)
		assert.Equal(t, "week1.mp4", resp.PassagesUsed[0].Metadata["filename"])

		assert.Equal(t, "What is velocity?", asker.lastQuestion)
		assert.Equal(t, 3, asker.lastOpts.N)
		assert.Equal(t, "vid-1", asker.lastOpts.VideoID)
	})

	t.Run("requires question field", func(t *testing.T) {
		server := setupTestServer(t, nil, nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/qa", strings.NewReader(`{}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reports generation failure in body with 200", func(t *testing.T) {
		asker := &fakeAsker{err: fmt.Errorf("model unavailable")}
		server := setupTestServer(t, nil, asker, nil)

		body := `{"question":"Why?"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/qa", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp QAResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "model unavailable")
	})
}

func TestHandleQuery(t *testing.T) {
	t.Run("returns raw passages", func(t *testing.T) {
		searcher := &fakeSearcher{results: []vectorstore.Result{
			{ID: "src-1_0", Text: "velocity...", Metadata: map[string]string{"filename": "week1.mp4"}, Distance: 0.2},
		}}
		server := setupTestServerWithSearcher(t, nil, nil, searcher, nil)

		body := `{"question":"velocity","n_context":2,"subject_id":"phy-1"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp QueryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, "src-1_0", resp.Results[0].ID)

		assert.Equal(t, "velocity", searcher.lastQuestion)
		assert.Equal(t, 2, searcher.lastOpts.N)
		assert.Equal(t, "phy-1", searcher.lastOpts.SubjectID)
	})

	t.Run("returns empty list when nothing matches", func(t *testing.T) {
		server := setupTestServerWithSearcher(t, nil, nil, &fakeSearcher{}, nil)

		body := `{"question":"anything"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"results":[]`)
	})
}

func TestHandleChunks(t *testing.T) {
	store := &fakeStore{chunks: []document.Chunk{
		{ID: "src-1_0", Text: "first", Metadata: map[string]string{"source_id": "src-1"}},
		{ID: "src-1_1", Text: "second", Metadata: map[string]string{"source_id": "src-1"}},
	}}
	server := setupTestServer(t, nil, nil, store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chunks", nil)
	rec := httptest.NewRecorder()

	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ChunksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, []string{"src-1_0", "src-1_1"}, resp.IDs)
	assert.Equal(t, []string{"first", "second"}, resp.Documents)
	assert.Equal(t, "src-1", resp.Metadatas[0]["source_id"])
}

func TestHandleDeleteSource(t *testing.T) {
	ingestor := &fakeIngestor{deleteN: 7}
	server := setupTestServer(t, ingestor, nil, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sources/src-9", nil)
	rec := httptest.NewRecorder()

	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "src-9", ingestor.deleted)

	var resp DeleteSourceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 7, resp.Deleted)
}

func TestShutdown(t *testing.T) {
	server := setupTestServer(t, nil, nil, nil)
	err := server.Shutdown(context.Background())
	assert.NoError(t, err)
}
