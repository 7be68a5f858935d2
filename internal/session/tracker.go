// Package session implements the download session tracker and its state machine
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"video-downloader/internal/ytdlp"
	"video-downloader/pkg/models"
)

var (
	ErrInvalidURL        = errors.New("please enter a valid URL")
	ErrSessionBusy       = errors.New("a download is already in progress")
	ErrInvalidTransition = errors.New("invalid session state for this operation")
)

// Tracker owns the single download session and serializes access to it.
// Requests hold it by reference; the background download goroutine is the
// only writer of terminal transitions.
type Tracker struct {
	client       ytdlp.Client
	downloadsDir string
	maxDuration  time.Duration
	logger       *slog.Logger

	mu      sync.RWMutex
	session models.DownloadSession
	cancel  context.CancelFunc
}

// NewTracker creates a tracker in the idle state
func NewTracker(client ytdlp.Client, downloadsDir string, maxDuration time.Duration) *Tracker {
	return &Tracker{
		client:       client,
		downloadsDir: downloadsDir,
		maxDuration:  maxDuration,
		logger:       slog.Default(),
		session:      models.DownloadSession{State: models.StateIdle},
	}
}

// FetchInfo retrieves video metadata for a URL. The caller blocks until
// metadata is available or an error occurs; session state is restored
// afterwards because an info fetch is stateless with respect to downloads.
func (t *Tracker) FetchInfo(ctx context.Context, rawURL string) (*models.VideoInfo, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.session.State.IsBusy() {
		t.mu.Unlock()
		return nil, ErrSessionBusy
	}
	previous := t.session.State
	t.session.State = models.StateFetchingInfo
	t.mu.Unlock()

	info, err := t.client.GetVideoInfo(ctx, strings.TrimSpace(rawURL))

	t.mu.Lock()
	t.session.State = previous
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn("Info fetch failed", "url", rawURL, "error", err)
		return nil, err
	}

	return info, nil
}

// StartDownload launches a background download and returns immediately.
// It fails with ErrSessionBusy while an info fetch or download is running;
// starting from a terminal state implicitly resets the previous session.
func (t *Tracker) StartDownload(rawURL, formatID, customFilename string) (string, error) {
	if err := validateURL(rawURL); err != nil {
		return "", err
	}

	if formatID == "" {
		formatID = "best"
	}
	customFilename = sanitizeFilename(customFilename)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session.State.IsBusy() {
		return "", ErrSessionBusy
	}

	now := time.Now()
	t.session = models.DownloadSession{
		ID:            uuid.NewString(),
		SourceURL:     strings.TrimSpace(rawURL),
		FormatID:      formatID,
		State:         models.StateDownloading,
		Progress:      0,
		StatusMessage: "Starting download...",
		StartedAt:     &now,
	}

	// The download outlives the request that started it, so it gets its own
	// context rather than the request's
	var ctx context.Context
	if t.maxDuration > 0 {
		ctx, t.cancel = context.WithTimeout(context.Background(), t.maxDuration)
	} else {
		ctx, t.cancel = context.WithCancel(context.Background())
	}

	go t.runDownload(ctx, t.cancel, t.session.ID, ytdlp.DownloadRequest{
		URL:            t.session.SourceURL,
		FormatID:       formatID,
		OutputDir:      t.downloadsDir,
		CustomFilename: customFilename,
		Progress: func(percent float64, message string) {
			t.updateProgress(percent, message)
		},
	})

	t.logger.Info("Download started", "session_id", t.session.ID, "url", t.session.SourceURL, "format", formatID)
	return t.session.ID, nil
}

// runDownload executes the transfer and records the terminal transition
func (t *Tracker) runDownload(ctx context.Context, cancel context.CancelFunc, sessionID string, req ytdlp.DownloadRequest) {
	defer cancel()

	filename, err := t.client.Download(ctx, req)

	t.mu.Lock()
	defer t.mu.Unlock()

	// A session mismatch means this goroutine is stale; drop its result
	if t.session.ID != sessionID || t.session.State != models.StateDownloading {
		return
	}

	now := time.Now()
	t.session.FinishedAt = &now
	t.cancel = nil

	if err != nil {
		t.session.State = models.StateFailed
		t.session.StatusMessage = "Download failed"
		t.session.ErrorDetail = downloadErrorDetail(ctx, err)
		// Progress stays frozen at its last reported value
		t.logger.Error("Download failed", "session_id", sessionID, "error", err)
		return
	}

	t.session.State = models.StateCompleted
	t.session.Progress = 100
	t.session.StatusMessage = "Download completed!"
	t.session.ResultFilename = filename
	t.logger.Info("Download completed", "session_id", sessionID, "filename", filename)
}

// updateProgress is invoked by the extractor's progress callback from the
// download goroutine; percent never decreases within an episode
func (t *Tracker) updateProgress(percent float64, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session.State != models.StateDownloading {
		return
	}

	if percent > t.session.Progress {
		t.session.Progress = percent
	}
	if message != "" {
		t.session.StatusMessage = message
	}
}

// Status returns a snapshot copy of the current session. Never blocks on
// downloads, never fails.
func (t *Tracker) Status() models.DownloadSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session
}

// Reset returns the tracker to idle after a completed or failed download.
// Resetting an idle tracker is a no-op; resetting mid-download is an error.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.session.State == models.StateIdle:
		return nil
	case t.session.State.IsTerminal():
		t.session = models.DownloadSession{State: models.StateIdle}
		return nil
	default:
		return fmt.Errorf("%w: cannot reset while %s", ErrInvalidTransition, t.session.State)
	}
}

// Cancel aborts the in-flight download by cancelling its context, which
// terminates the underlying yt-dlp process. The session transitions to
// failed with a cancellation cause once the download goroutine observes it.
func (t *Tracker) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session.State != models.StateDownloading || t.cancel == nil {
		return fmt.Errorf("%w: no download in progress", ErrInvalidTransition)
	}

	t.cancel()
	t.logger.Info("Download cancellation requested", "session_id", t.session.ID)
	return nil
}

// downloadErrorDetail distinguishes cancellation and timeout from transfer errors
func downloadErrorDetail(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return "Download cancelled"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "Download aborted: maximum download duration exceeded"
	default:
		return err.Error()
	}
}

// validateURL accepts syntactically well-formed absolute http(s) URLs only
func validateURL(rawURL string) error {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ErrInvalidURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ErrInvalidURL
	}

	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ErrInvalidURL
	}

	return nil
}

// sanitizeFilename strips any path components from a caller-supplied name
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == ".." {
		return ""
	}

	return name
}
