// Package ytdlp provides client functionality for the external yt-dlp binary
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"video-downloader/pkg/models"
)

const (
	// defaultUserAgent is sent to upstream sites to reduce bot blocking
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultReferer   = "https://www.google.com/"
)

// ProgressFunc receives progress updates while a download is running.
// It is invoked from the goroutine reading yt-dlp's output, not from the
// goroutine that started the download.
type ProgressFunc func(percent float64, message string)

// DownloadRequest describes a single download invocation
type DownloadRequest struct {
	URL            string
	FormatID       string
	OutputDir      string
	CustomFilename string
	Progress       ProgressFunc
}

// Client defines the extractor operations used by the session tracker
//
//go:generate mockgen -source=client.go -destination=mocks/mock_client.go -package=mocks
type Client interface {
	GetVideoInfo(ctx context.Context, url string) (*models.VideoInfo, error)
	Download(ctx context.Context, req DownloadRequest) (string, error)
	Version(ctx context.Context) (string, error)
}

// ExtractionError carries a human-readable cause for an extractor failure
type ExtractionError struct {
	Message string
}

// Error implements the error interface for ExtractionError
func (e *ExtractionError) Error() string {
	return e.Message
}

// CLI is a Client implementation that shells out to the yt-dlp binary
type CLI struct {
	binPath string
	logger  *slog.Logger
}

// New creates a new yt-dlp CLI client
func New(binPath string) *CLI {
	return &CLI{
		binPath: binPath,
		logger:  slog.Default(),
	}
}

// baseArgs returns the flags shared by info queries and downloads
func (c *CLI) baseArgs() []string {
	return []string{
		"--no-playlist",
		"--no-warnings",
		"--no-check-certificates",
		"--retries", "5",
		"--fragment-retries", "5",
		"--socket-timeout", "60",
		"--user-agent", defaultUserAgent,
		"--referer", defaultReferer,
	}
}

// GetVideoInfo queries metadata for a URL without downloading anything
func (c *CLI) GetVideoInfo(ctx context.Context, url string) (*models.VideoInfo, error) {
	args := append(c.baseArgs(), "-J", url)

	cmd := exec.CommandContext(ctx, c.binPath, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, mapExtractionError(stderr.String(), url)
	}

	if stdout.Len() == 0 {
		return nil, &ExtractionError{Message: "Could not retrieve video information"}
	}

	info, err := parseVideoInfo(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to parse video info: %w", err)
	}

	return info, nil
}

// formatSelector builds the format expression with fallback chains
func formatSelector(formatID string) string {
	if formatID == "" || formatID == "best" {
		return "best[height<=1080]/best[height<=720]/best[height<=480]/best"
	}
	return fmt.Sprintf("%s+bestaudio/bestaudio/best", formatID)
}

var (
	progressRe = regexp.MustCompile(`\[download\]\s+([0-9.]+)% of ~?\s*(\S+)(?:\s+at\s+(\S+))?`)
	destRe     = regexp.MustCompile(`\[download\] Destination: (.+)$`)
	mergeRe    = regexp.MustCompile(`\[Merger\] Merging formats into "(.+)"`)
	alreadyRe  = regexp.MustCompile(`\[download\] (.+) has already been downloaded`)
)

// Download runs yt-dlp and streams its progress output into req.Progress.
// It blocks until the transfer finishes and returns the output filename.
func (c *CLI) Download(ctx context.Context, req DownloadRequest) (string, error) {
	outputTemplate := filepath.Join(req.OutputDir, "%(title)s.%(ext)s")
	if req.CustomFilename != "" {
		outputTemplate = filepath.Join(req.OutputDir, req.CustomFilename)
	}

	args := append(c.baseArgs(),
		"--newline",
		"-f", formatSelector(req.FormatID),
		"-o", outputTemplate,
		"--merge-output-format", "mp4",
		"--remux-video", "mp4",
		req.URL,
	)

	cmd := exec.CommandContext(ctx, c.binPath, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start yt-dlp: %w", err)
	}

	// Drain stderr concurrently so a chatty process cannot stall on a full pipe
	stderrDone := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(stderrPipe)
		stderrDone <- data
	}()

	var destination string
	scanner := bufio.NewScanner(stdoutPipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitByNewlineOrCR)
	for scanner.Scan() {
		line := scanner.Text()
		if dest, ok := parseDestination(line); ok {
			destination = dest
			continue
		}
		if percent, message, ok := parseProgress(line); ok && req.Progress != nil {
			req.Progress(percent, message)
		}
	}

	stderrOutput := <-stderrDone

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", mapExtractionError(string(stderrOutput), req.URL)
	}

	if destination == "" && req.CustomFilename != "" {
		destination = req.CustomFilename
	}
	if destination == "" {
		return "", &ExtractionError{Message: "Download finished but the output filename was not reported"}
	}

	c.logger.Info("yt-dlp download finished", "url", req.URL, "file", filepath.Base(destination))
	return filepath.Base(destination), nil
}

// Version returns the installed yt-dlp version string
func (c *CLI) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, c.binPath, "--version")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp not available: %w", err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// parseProgress extracts the percentage and a display message from a
// "[download]  42.1% of 10.5MiB at 2.1MiB/s" line
func parseProgress(line string) (float64, string, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, "", false
	}

	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", false
	}

	speed := m[3]
	if speed == "" || speed == "Unknown" {
		return percent, fmt.Sprintf("Downloading: %.1f%%", percent), true
	}
	return percent, fmt.Sprintf("Downloading: %.1f%% - %s", percent, speed), true
}

// parseDestination recognizes the lines yt-dlp prints when it decides on,
// merges into, or reuses an output file
func parseDestination(line string) (string, bool) {
	if m := destRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := mergeRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := alreadyRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}

// splitByNewlineOrCR splits on both newline and carriage return so that
// yt-dlp's in-place progress updates become individual lines
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// mapExtractionError converts raw yt-dlp output into a user-facing cause
func mapExtractionError(output, url string) error {
	switch {
	case strings.Contains(output, "HTTP Error 403"):
		if strings.Contains(strings.ToLower(url), "streaming") {
			return &ExtractionError{Message: "This appears to be a streaming site with strong anti-bot protection. These sites typically don't allow direct downloads. Try using a supported platform like YouTube, Vimeo, or other major video sites."}
		}
		return &ExtractionError{Message: "Access denied. This video may be private, region-restricted, or require authentication. Please try a different video or check if the video is publicly available."}
	case strings.Contains(output, "Video unavailable"):
		return &ExtractionError{Message: "This video is unavailable. It may have been removed, made private, or is not accessible."}
	case strings.Contains(output, "Requested format is not available"):
		return &ExtractionError{Message: "The requested video format is not available. Please try selecting a different quality option."}
	case strings.Contains(output, "Sign in to confirm your age"):
		return &ExtractionError{Message: "This video requires age verification. Please try a different video."}
	case strings.Contains(output, "No video formats found"):
		return &ExtractionError{Message: "No downloadable video formats found. This site may not be supported or may require special access."}
	case strings.Contains(output, "Unsupported URL"):
		return &ExtractionError{Message: "This URL is not supported. Please try a video from YouTube, Vimeo, or other supported platforms."}
	default:
		detail := strings.TrimSpace(output)
		if detail == "" {
			detail = "unknown error"
		}
		return &ExtractionError{Message: fmt.Sprintf("Error extracting video info: %s", detail)}
	}
}
