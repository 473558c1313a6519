package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// listCmd lists every indexed chunk
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all indexed chunks",
	Long: `List every chunk in the lecternd index, grouped by source.

Examples:
  # Show indexed chunks
  lectern list

  # Raw JSON output
  lectern list --json`,
	RunE: runList,
}

// ChunksResponse matches internal/http/server.go ChunksResponse
type ChunksResponse struct {
	IDs       []string            `json:"ids"`
	Documents []string            `json:"documents"`
	Metadatas []map[string]string `json:"metadatas"`
	Count     int                 `json:"count"`
}

// runList handles the list command
func runList(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/api/v1/chunks", serverURL)

	client := &http.Client{
		Timeout: 2 * time.Minute,
	}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if jsonOutput {
		fmt.Println(string(body))
		return nil
	}

	var chunksResp ChunksResponse
	if err := json.Unmarshal(body, &chunksResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if chunksResp.Count == 0 {
		fmt.Println("No chunks indexed.")
		return nil
	}

	fmt.Printf("%d chunk(s) indexed\n\n", chunksResp.Count)

	lastSource := ""
	for i, id := range chunksResp.IDs {
		meta := map[string]string{}
		if i < len(chunksResp.Metadatas) {
			meta = chunksResp.Metadatas[i]
		}
		if src := meta["source_id"]; src != lastSource {
			fmt.Printf("%s (%s)\n", src, passageLabel(meta))
			lastSource = src
		}
		text := ""
		if i < len(chunksResp.Documents) {
			text = chunksResp.Documents[i]
		}
		fmt.Printf("  %s: %s\n", id, snippet(text, 120))
	}

	return nil
}
