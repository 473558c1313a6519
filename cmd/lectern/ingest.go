package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var ingestFlags struct {
	sourceID  string
	videoID   string
	subject   string
	subjectID string
	chapter   string
	chapterID string
	part      string
	userID    string
}

// ingestCmd uploads a file or URL for indexing
var ingestCmd = &cobra.Command{
	Use:   "ingest <path-or-url>",
	Short: "Ingest a video, PDF, DOCX or URL into the course index",
	Long: `Ingest course material into the lecternd index.

Local video files are transcribed before indexing; PDF and DOCX files are
indexed directly. http(s) URLs are downloaded first (streaming sites via
yt-dlp). Re-ingesting with --source-id replaces that source's chunks.

Examples:
  # Ingest a lecture recording
  lectern ingest week1.mp4 --video-id vid-1 --subject Physics --chapter Motion

  # Ingest a PDF
  lectern ingest notes.pdf --subject-id phy-1

  # Ingest from YouTube
  lectern ingest https://youtube.com/watch?v=abc --video-id vid-2

  # Replace an existing source
  lectern ingest week1-v2.mp4 --source-id 3f1a...`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFlags.sourceID, "source-id", "", "replace this existing source")
	ingestCmd.Flags().StringVar(&ingestFlags.videoID, "video-id", "", "video identifier for scoped retrieval")
	ingestCmd.Flags().StringVar(&ingestFlags.subject, "subject", "", "subject name")
	ingestCmd.Flags().StringVar(&ingestFlags.subjectID, "subject-id", "", "subject identifier")
	ingestCmd.Flags().StringVar(&ingestFlags.chapter, "chapter", "", "chapter name")
	ingestCmd.Flags().StringVar(&ingestFlags.chapterID, "chapter-id", "", "chapter identifier")
	ingestCmd.Flags().StringVar(&ingestFlags.part, "part", "", "part within the chapter")
	ingestCmd.Flags().StringVar(&ingestFlags.userID, "user-id", "", "uploading user identifier")
}

// TranscribeResponse matches internal/http/server.go TranscribeResponse
type TranscribeResponse struct {
	Success           bool   `json:"success"`
	SourceID          string `json:"source_id"`
	Kind              string `json:"kind"`
	Chunks            int    `json:"chunks"`
	Replaced          int    `json:"replaced"`
	TranscriptPreview string `json:"transcript_preview"`
	TranscriptPDF     string `json:"transcript_pdf"`
	Error             string `json:"error"`
}

// runIngest handles the ingest command
func runIngest(cmd *cobra.Command, args []string) error {
	input := args[0]

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"source_id":  ingestFlags.sourceID,
		"video_id":   ingestFlags.videoID,
		"subject":    ingestFlags.subject,
		"subject_id": ingestFlags.subjectID,
		"chapter":    ingestFlags.chapter,
		"chapter_id": ingestFlags.chapterID,
		"part":       ingestFlags.part,
		"user_id":    ingestFlags.userID,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
	}

	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		if err := w.WriteField("url", input); err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
	} else {
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", input, err)
		}
		defer f.Close()

		part, err := w.CreateFormFile("file", filepath.Base(input))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		if _, err := io.Copy(part, f); err != nil {
			return fmt.Errorf("failed to read %s: %w", input, err)
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/transcribe", serverURL)
	httpReq, err := http.NewRequest("POST", url, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	// Transcription of long videos can take a while.
	client := &http.Client{
		Timeout: 60 * time.Minute,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if jsonOutput {
		fmt.Println(string(body))
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}

	var ingestResp TranscribeResponse
	if err := json.Unmarshal(body, &ingestResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !ingestResp.Success {
		return fmt.Errorf("ingestion failed: %s", ingestResp.Error)
	}

	fmt.Printf("Source ID: %s\n", ingestResp.SourceID)
	fmt.Printf("Kind:      %s\n", ingestResp.Kind)
	fmt.Printf("Chunks:    %d\n", ingestResp.Chunks)
	if ingestResp.Replaced > 0 {
		fmt.Printf("Replaced:  %d\n", ingestResp.Replaced)
	}
	if ingestResp.TranscriptPDF != "" {
		fmt.Printf("Transcript PDF: %s\n", ingestResp.TranscriptPDF)
	}

	return nil
}
