package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTestServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	oldURL, oldJSON := serverURL, jsonOutput
	serverURL = srv.URL
	jsonOutput = false
	t.Cleanup(func() {
		serverURL = oldURL
		jsonOutput = oldJSON
	})
}

func TestRunHealth(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
	})

	err := runHealth(healthCmd, nil)
	assert.NoError(t, err)
}

func TestRunHealth_ServerError(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	err := runHealth(healthCmd, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestRunAsk(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/qa", r.URL.Path)

		var req QARequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "What is velocity?", req.Question)
		assert.Equal(t, "vid-1", req.VideoID)

		json.NewEncoder(w).Encode(QAResponse{
			Success: true,
			Answer:  "Velocity is speed with direction.",
			PassagesUsed: []Passage{
				{Text: "...", Metadata: map[string]string{"filename": "week1.mp4"}},
			},
		})
	})

	askFlags.videoID = "vid-1"
	t.Cleanup(func() { askFlags.videoID = "" })

	err := runAsk(askCmd, []string{"What", "is", "velocity?"})
	assert.NoError(t, err)
}

func TestRunAsk_GenerationFailure(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(QAResponse{Success: false, Error: "model unavailable"})
	})

	err := runAsk(askCmd, []string{"why"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestRunQuery(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/query", r.URL.Path)
		json.NewEncoder(w).Encode(QueryResponse{
			Results: []QueryResult{{ID: "src-1_0", Text: "velocity", Distance: 0.1}},
			Count:   1,
		})
	})

	err := runQuery(queryCmd, []string{"velocity"})
	assert.NoError(t, err)
}

func TestRunList(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chunks", r.URL.Path)
		json.NewEncoder(w).Encode(ChunksResponse{
			IDs:       []string{"src-1_0"},
			Documents: []string{"first chunk"},
			Metadatas: []map[string]string{{"source_id": "src-1", "filename": "notes.pdf"}},
			Count:     1,
		})
	})

	err := runList(listCmd, nil)
	assert.NoError(t, err)
}

func TestRunIngest_File(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transcribe", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "Physics", r.FormValue("subject"))
		_, fh, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "notes.pdf", fh.Filename)

		json.NewEncoder(w).Encode(TranscribeResponse{Success: true, SourceID: "src-1", Kind: "pdf", Chunks: 3})
	})

	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644))

	ingestFlags.subject = "Physics"
	t.Cleanup(func() { ingestFlags.subject = "" })

	err := runIngest(ingestCmd, []string{path})
	assert.NoError(t, err)
}

func TestRunIngest_URL(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "https://youtube.com/watch?v=abc", r.FormValue("url"))

		json.NewEncoder(w).Encode(TranscribeResponse{Success: true, SourceID: "src-2", Kind: "video", Chunks: 9})
	})

	err := runIngest(ingestCmd, []string{"https://youtube.com/watch?v=abc"})
	assert.NoError(t, err)
}

func TestRunIngest_MissingFile(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not be sent")
	})

	err := runIngest(ingestCmd, []string{"/does/not/exist.pdf"})
	assert.Error(t, err)
}

func TestPassageLabel(t *testing.T) {
	assert.Equal(t, "Unknown", passageLabel(map[string]string{}))
	assert.Equal(t, "week1.mp4", passageLabel(map[string]string{"filename": "week1.mp4"}))
	assert.Equal(t, "week1.mp4 (Physics, Motion)", passageLabel(map[string]string{
		"filename": "week1.mp4", "subject": "Physics", "chapter": "Motion",
	}))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short text", snippet("short\n  text", 50))
	long := snippet("aaaa bbbb cccc dddd", 9)
	assert.Equal(t, "aaaa bbbb...", long)
}
