// Package download fetches remote video or audio for ingestion, either with
// yt-dlp for streaming sites or a plain HTTP GET for direct media links.
package download

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lectern/internal/config"
)

// ytDLPDomains lists sites best handled by yt-dlp rather than a direct GET.
var ytDLPDomains = []string{
	"youtube.com",
	"youtu.be",
	"m.youtube.com",
	"vimeo.com",
	"dailymotion.com",
	"facebook.com",
	"fb.watch",
	"twitter.com",
	"x.com",
}

var mediaExtPattern = regexp.MustCompile(`(?i)\.(mp4|webm|mkv|mov|avi|m4a|mp3|wav)$`)

// IsURL reports whether the input looks like an HTTP(S) URL rather than a
// local path.
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// isStreamingSite reports whether the URL's host is served by yt-dlp.
func isStreamingSite(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, domain := range ytDLPDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// Downloader fetches remote media into a local work directory.
type Downloader struct {
	ytdlpPath string
	timeout   time.Duration
	client    *http.Client
	logger    *zap.Logger
}

// New creates a Downloader.
func New(cfg config.DownloadConfig, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	ytdlpPath := cfg.YTDLPPath
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Minute
	}
	return &Downloader{
		ytdlpPath: ytdlpPath,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// Fetch downloads the media behind a URL into dir and returns the local file
// path. Streaming sites go through yt-dlp; anything else is fetched directly.
func (d *Downloader) Fetch(ctx context.Context, rawURL, dir string) (string, error) {
	if !IsURL(rawURL) {
		return "", fmt.Errorf("not an HTTP(S) URL: %s", rawURL)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating download dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if isStreamingSite(rawURL) {
		return d.fetchWithYTDLP(ctx, rawURL, dir)
	}
	return d.fetchDirect(ctx, rawURL, dir)
}

// fetchWithYTDLP shells out to yt-dlp, preferring an mp4 merge and retrying
// with the plain "best" format when the site blocks the preferred one.
func (d *Downloader) fetchWithYTDLP(ctx context.Context, rawURL, dir string) (string, error) {
	outTemplate := filepath.Join(dir, "%(id)s.%(ext)s")

	firstErr := d.runYTDLP(ctx, rawURL,
		"-f", "bestvideo[ext=mp4]+bestaudio/best[ext=mp4]/best",
		"--merge-output-format", "mp4",
		"-o", outTemplate,
	)
	if firstErr != nil {
		if retryErr := d.runYTDLP(ctx, rawURL, "-f", "best", "-o", outTemplate); retryErr != nil {
			return "", firstErr
		}
	}

	path, err := newestMediaFile(dir)
	if err != nil {
		return "", fmt.Errorf("yt-dlp did not produce a recognizable file: %w", err)
	}

	d.logger.Debug("downloaded with yt-dlp",
		zap.String("url", rawURL),
		zap.String("path", path),
	)
	return path, nil
}

func (d *Downloader) runYTDLP(ctx context.Context, rawURL string, args ...string) error {
	args = append(args, "--no-progress", "--quiet", rawURL)
	cmd := exec.CommandContext(ctx, d.ytdlpPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// fetchDirect downloads a direct media link with a plain GET.
func (d *Downloader) fetchDirect(ctx context.Context, rawURL, dir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing URL: %w", err)
	}

	name := strings.TrimSpace(filepath.Base(u.Path))
	if name == "" || name == "." || name == "/" {
		name = "video"
	}
	if !mediaExtPattern.MatchString(name) {
		name += ".mp4"
	}
	path := filepath.Join(dir, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: status %d", rawURL, resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing download: %w", err)
	}

	d.logger.Debug("downloaded direct URL",
		zap.String("url", rawURL),
		zap.String("path", path),
	)
	return path, nil
}

// newestMediaFile returns the most recently modified media file in dir.
func newestMediaFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !mediaExtPattern.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{filepath.Join(dir, e.Name()), info.ModTime()})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no media files in %s", dir)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})
	return candidates[0].path, nil
}
