package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var queryFlags struct {
	nContext  int
	videoID   string
	subjectID string
	chapterID string
	userID    string
}

// queryCmd retrieves raw passages without answer generation
var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Retrieve matching passages without generating an answer",
	Long: `Retrieve the passages semantic search would ground an answer on,
without calling the answer model. Useful for inspecting what is indexed.

Examples:
  # Show the passages for a question
  lectern query "newton's second law"

  # Raw JSON output
  lectern query "newton's second law" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryFlags.nContext, "n-context", 0, "number of passages to retrieve (0 = server default)")
	queryCmd.Flags().StringVar(&queryFlags.videoID, "video-id", "", "restrict retrieval to one video")
	queryCmd.Flags().StringVar(&queryFlags.subjectID, "subject-id", "", "restrict retrieval to one subject")
	queryCmd.Flags().StringVar(&queryFlags.chapterID, "chapter-id", "", "restrict retrieval to one chapter")
	queryCmd.Flags().StringVar(&queryFlags.userID, "user-id", "", "restrict retrieval to one uploader")
}

// QueryResult matches internal/vectorstore Result
type QueryResult struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Distance float32           `json:"distance"`
}

// QueryResponse matches internal/http/server.go QueryResponse
type QueryResponse struct {
	Results []QueryResult `json:"results"`
	Count   int           `json:"count"`
}

// runQuery handles the query command
func runQuery(cmd *cobra.Command, args []string) error {
	req := QARequest{
		Question:  strings.Join(args, " "),
		NContext:  queryFlags.nContext,
		VideoID:   queryFlags.videoID,
		SubjectID: queryFlags.subjectID,
		ChapterID: queryFlags.chapterID,
		UserID:    queryFlags.userID,
	}

	var resp QueryResponse
	if err := postJSON("/api/v1/query", req, &resp, 2*time.Minute); err != nil {
		return err
	}
	if jsonOutput {
		return nil
	}

	if resp.Count == 0 {
		fmt.Println("No matching passages.")
		return nil
	}

	for i, r := range resp.Results {
		fmt.Printf("[%d] %s (distance %.3f)\n", i+1, passageLabel(r.Metadata), r.Distance)
		fmt.Printf("    %s\n", snippet(r.Text, 200))
	}

	return nil
}

// snippet truncates text to a single display line.
func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
