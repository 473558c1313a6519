package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var askFlags struct {
	nContext  int
	videoID   string
	subjectID string
	chapterID string
	userID    string
}

// askCmd asks a grounded question against the indexed material
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question grounded in the indexed course material",
	Long: `Ask a question and get an answer grounded in the indexed course material.

Examples:
  # Ask across everything indexed
  lectern ask "What is velocity?"

  # Scope to one video
  lectern ask "What is velocity?" --video-id vid-1

  # Retrieve more context
  lectern ask "Summarize chapter 2" --n-context 12`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVar(&askFlags.nContext, "n-context", 0, "number of passages to retrieve (0 = server default)")
	askCmd.Flags().StringVar(&askFlags.videoID, "video-id", "", "restrict retrieval to one video")
	askCmd.Flags().StringVar(&askFlags.subjectID, "subject-id", "", "restrict retrieval to one subject")
	askCmd.Flags().StringVar(&askFlags.chapterID, "chapter-id", "", "restrict retrieval to one chapter")
	askCmd.Flags().StringVar(&askFlags.userID, "user-id", "", "restrict retrieval to one uploader")
}

// QARequest matches internal/http/server.go QARequest
type QARequest struct {
	Question  string `json:"question"`
	NContext  int    `json:"n_context,omitempty"`
	VideoID   string `json:"video_id,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`
	ChapterID string `json:"chapter_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// QAResponse matches internal/http/server.go QAResponse
type QAResponse struct {
	Success      bool      `json:"success"`
	Answer       string    `json:"answer"`
	PassagesUsed []Passage `json:"passages_used"`
	Error        string    `json:"error"`
}

// Passage matches internal/answer Passage
type Passage struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Distance float32           `json:"distance"`
}

// runAsk handles the ask command
func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	req := QARequest{
		Question:  question,
		NContext:  askFlags.nContext,
		VideoID:   askFlags.videoID,
		SubjectID: askFlags.subjectID,
		ChapterID: askFlags.chapterID,
		UserID:    askFlags.userID,
	}

	var resp QAResponse
	if err := postJSON("/api/v1/qa", req, &resp, 5*time.Minute); err != nil {
		return err
	}
	if jsonOutput {
		return nil
	}

	if !resp.Success {
		return fmt.Errorf("answer generation failed: %s", resp.Error)
	}

	fmt.Println(resp.Answer)

	if len(resp.PassagesUsed) > 0 {
		fmt.Printf("\nGrounded on %d passage(s):\n", len(resp.PassagesUsed))
		for i, p := range resp.PassagesUsed {
			fmt.Printf("  [%d] %s (distance %.3f)\n", i+1, passageLabel(p.Metadata), p.Distance)
		}
	}

	return nil
}

// passageLabel renders a short source label for a passage.
func passageLabel(meta map[string]string) string {
	name := meta["filename"]
	if name == "" {
		name = "Unknown"
	}
	var parts []string
	if meta["subject"] != "" {
		parts = append(parts, meta["subject"])
	}
	if meta["chapter"] != "" {
		parts = append(parts, meta["chapter"])
	}
	if len(parts) == 0 {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, strings.Join(parts, ", "))
}
