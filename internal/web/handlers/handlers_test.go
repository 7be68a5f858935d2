package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"video-downloader/internal/files"
	"video-downloader/internal/session"
	"video-downloader/internal/settings"
	"video-downloader/internal/ytdlp"
	"video-downloader/internal/ytdlp/mocks"
	"video-downloader/pkg/models"
)

type testEnv struct {
	handlers     *Handlers
	client       *mocks.MockClient
	downloadsDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	downloadsDir := t.TempDir()
	tracker := session.NewTracker(client, downloadsDir, 0)
	registry := files.NewRegistry(downloadsDir)

	store, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	return &testEnv{
		handlers:     NewHandlers(tracker, registry, store, client),
		client:       client,
		downloadsDir: downloadsDir,
	}
}

func (e *testEnv) pollUntilTerminal(t *testing.T) models.DownloadSession {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("session never reached a terminal state")
		default:
		}

		req := httptest.NewRequest("GET", "/api/status", nil)
		w := httptest.NewRecorder()
		e.handlers.GetStatus(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var snapshot models.DownloadSession
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
		if snapshot.State.IsTerminal() {
			return snapshot
		}

		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewHandlers(t *testing.T) {
	env := newTestEnv(t)
	require.NotNil(t, env.handlers)
	require.NotNil(t, env.handlers.tracker)
	require.NotNil(t, env.handlers.registry)
	require.NotNil(t, env.handlers.settings)
	require.NotNil(t, env.handlers.logger)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	env.client.EXPECT().Version(gomock.Any()).Return("2025.08.11", nil)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	env.handlers.Health(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, true, body["ok"])
	require.Equal(t, true, body["ytdlp_available"])
	require.Equal(t, "2025.08.11", body["ytdlp_version"])
}

func TestHealthYtdlpMissing(t *testing.T) {
	env := newTestEnv(t)

	env.client.EXPECT().Version(gomock.Any()).Return("", context.DeadlineExceeded)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	env.handlers.Health(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, true, body["ok"])
	require.Equal(t, false, body["ytdlp_available"])
}

func TestGetVideoInfo(t *testing.T) {
	env := newTestEnv(t)

	env.client.EXPECT().
		GetVideoInfo(gomock.Any(), "https://example.com/v/1").
		Return(&models.VideoInfo{
			Title:    "Test Video",
			Duration: 213,
			Uploader: "Test Channel",
			Formats: []models.VideoFormat{
				{FormatID: "137", Resolution: "1920x1080", Height: 1080, Extension: "mp4"},
			},
		}, nil)

	req := httptest.NewRequest("POST", "/api/info", strings.NewReader(`{"url":"https://example.com/v/1"}`))
	w := httptest.NewRecorder()
	env.handlers.GetVideoInfo(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":true`)
	require.Contains(t, w.Body.String(), "Test Video")
	require.Contains(t, w.Body.String(), `"format_id":"137"`)
}

func TestGetVideoInfoErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		mock     func(client *mocks.MockClient)
		wantCode int
		wantBody string
	}{
		{
			name:     "invalid JSON body",
			body:     "{not json",
			wantCode: http.StatusBadRequest,
			wantBody: "Invalid request body",
		},
		{
			name:     "empty URL",
			body:     `{"url":""}`,
			wantCode: http.StatusBadRequest,
			wantBody: "valid URL",
		},
		{
			name:     "malformed URL",
			body:     `{"url":"not a url"}`,
			wantCode: http.StatusBadRequest,
			wantBody: "valid URL",
		},
		{
			name: "extraction failure keeps 200 with success false",
			body: `{"url":"https://example.com/v/1"}`,
			mock: func(client *mocks.MockClient) {
				client.EXPECT().
					GetVideoInfo(gomock.Any(), "https://example.com/v/1").
					Return(nil, &ytdlp.ExtractionError{Message: "This video is unavailable."})
			},
			wantCode: http.StatusOK,
			wantBody: "This video is unavailable.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.mock != nil {
				tt.mock(env.client)
			}

			req := httptest.NewRequest("POST", "/api/info", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			env.handlers.GetVideoInfo(w, req)

			require.Equal(t, tt.wantCode, w.Code)
			require.Contains(t, w.Body.String(), tt.wantBody)
			require.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}

func TestStartDownload(t *testing.T) {
	env := newTestEnv(t)

	env.client.EXPECT().
		Download(gomock.Any(), gomock.Any()).
		Return("video.mp4", nil)

	req := httptest.NewRequest("POST", "/api/download", strings.NewReader(`{"url":"https://example.com/v/1","format":"best"}`))
	w := httptest.NewRecorder()
	env.handlers.StartDownload(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":true`)
	require.Contains(t, w.Body.String(), "Download started")

	snapshot := env.pollUntilTerminal(t)
	require.Equal(t, models.StateCompleted, snapshot.State)
}

func TestStartDownloadUsesPreferredFormat(t *testing.T) {
	env := newTestEnv(t)

	prefs := settings.Defaults()
	prefs.PreferredFormat = "137"
	require.NoError(t, env.handlers.settings.Update(prefs))

	env.client.EXPECT().
		Download(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req ytdlp.DownloadRequest) (string, error) {
			require.Equal(t, "137", req.FormatID)
			return "video.mp4", nil
		})

	req := httptest.NewRequest("POST", "/api/download", strings.NewReader(`{"url":"https://example.com/v/1"}`))
	w := httptest.NewRecorder()
	env.handlers.StartDownload(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env.pollUntilTerminal(t)
}

func TestStartDownloadBusy(t *testing.T) {
	env := newTestEnv(t)

	release := make(chan struct{})
	env.client.EXPECT().
		Download(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req ytdlp.DownloadRequest) (string, error) {
			<-release
			return "video.mp4", nil
		})

	first := httptest.NewRequest("POST", "/api/download", strings.NewReader(`{"url":"https://example.com/v/1","format":"best"}`))
	w := httptest.NewRecorder()
	env.handlers.StartDownload(w, first)
	require.Equal(t, http.StatusOK, w.Code)

	// Second submission before the first completes is rejected
	second := httptest.NewRequest("POST", "/api/download", strings.NewReader(`{"url":"https://example.com/v/2","format":"best"}`))
	w = httptest.NewRecorder()
	env.handlers.StartDownload(w, second)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "already in progress")

	close(release)
	env.pollUntilTerminal(t)
}

func TestGetStatusIdle(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	env.handlers.GetStatus(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var snapshot models.DownloadSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	require.Equal(t, models.StateIdle, snapshot.State)
	require.Equal(t, float64(0), snapshot.Progress)
}

func TestResetSession(t *testing.T) {
	env := newTestEnv(t)

	env.client.EXPECT().
		Download(gomock.Any(), gomock.Any()).
		Return("video.mp4", nil)

	req := httptest.NewRequest("POST", "/api/download", strings.NewReader(`{"url":"https://example.com/v/1","format":"best"}`))
	w := httptest.NewRecorder()
	env.handlers.StartDownload(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	env.pollUntilTerminal(t)

	w = httptest.NewRecorder()
	env.handlers.ResetSession(w, httptest.NewRequest("POST", "/api/reset", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":true`)

	w = httptest.NewRecorder()
	env.handlers.GetStatus(w, httptest.NewRequest("GET", "/api/status", nil))
	var snapshot models.DownloadSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	require.Equal(t, models.StateIdle, snapshot.State)
}

func TestResetSessionWhileDownloading(t *testing.T) {
	env := newTestEnv(t)

	release := make(chan struct{})
	env.client.EXPECT().
		Download(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req ytdlp.DownloadRequest) (string, error) {
			<-release
			return "video.mp4", nil
		})

	req := httptest.NewRequest("POST", "/api/download", strings.NewReader(`{"url":"https://example.com/v/1","format":"best"}`))
	w := httptest.NewRecorder()
	env.handlers.StartDownload(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	env.handlers.ResetSession(w, httptest.NewRequest("POST", "/api/reset", nil))
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), `"success":false`)

	close(release)
	env.pollUntilTerminal(t)
}

func TestCancelDownload(t *testing.T) {
	env := newTestEnv(t)

	env.client.EXPECT().
		Download(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req ytdlp.DownloadRequest) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})

	req := httptest.NewRequest("POST", "/api/download", strings.NewReader(`{"url":"https://example.com/v/1","format":"best"}`))
	w := httptest.NewRecorder()
	env.handlers.StartDownload(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	env.handlers.CancelDownload(w, httptest.NewRequest("POST", "/api/cancel", nil))
	require.Equal(t, http.StatusOK, w.Code)

	snapshot := env.pollUntilTerminal(t)
	require.Equal(t, models.StateFailed, snapshot.State)
	require.Equal(t, "Download cancelled", snapshot.ErrorDetail)
}

func TestCancelDownloadWhenIdle(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handlers.CancelDownload(w, httptest.NewRequest("POST", "/api/cancel", nil))
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestListFilesEmpty(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handlers.ListFiles(w, httptest.NewRequest("GET", "/api/files", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"files":[]}`, w.Body.String())
}

func TestServeFile(t *testing.T) {
	env := newTestEnv(t)

	path := filepath.Join(env.downloadsDir, "video.mp4")
	require.NoError(t, os.WriteFile(path, []byte("media bytes"), 0o644))

	req := httptest.NewRequest("GET", "/files/video.mp4", nil)
	req.SetPathValue("filename", "video.mp4")
	w := httptest.NewRecorder()
	env.handlers.ServeFile(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "media bytes", w.Body.String())
	require.Contains(t, w.Header().Get("Content-Disposition"), "video.mp4")
}

func TestServeFileNotFound(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/files/missing.mp4", nil)
	req.SetPathValue("filename", "missing.mp4")
	w := httptest.NewRecorder()
	env.handlers.ServeFile(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeFileRejectsTraversal(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/files/x", nil)
	req.SetPathValue("filename", "../secrets.txt")
	w := httptest.NewRecorder()
	env.handlers.ServeFile(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handlers.GetSettings(w, httptest.NewRequest("GET", "/api/settings", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"ui_theme":"light"`)

	body := `{"preferred_format":"22","auto_download":true,"show_progress":true,"ui_theme":"dark"}`
	w = httptest.NewRecorder()
	env.handlers.UpdateSettings(w, httptest.NewRequest("PUT", "/api/settings", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"ui_theme":"dark"`)

	w = httptest.NewRecorder()
	env.handlers.GetSettings(w, httptest.NewRequest("GET", "/api/settings", nil))
	require.Contains(t, w.Body.String(), `"preferred_format":"22"`)
}

func TestUpdateSettingsInvalidTheme(t *testing.T) {
	env := newTestEnv(t)

	body := `{"preferred_format":"","auto_download":false,"show_progress":true,"ui_theme":"neon"}`
	w := httptest.NewRecorder()
	env.handlers.UpdateSettings(w, httptest.NewRequest("PUT", "/api/settings", strings.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid theme")
}

// TestDownloadLifecycle exercises the full submit / poll / list flow
func TestDownloadLifecycle(t *testing.T) {
	env := newTestEnv(t)

	env.client.EXPECT().
		Download(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req ytdlp.DownloadRequest) (string, error) {
			req.Progress(50.0, "Downloading: 50.0% - 2.10MiB/s")
			path := filepath.Join(req.OutputDir, "Example Video.mp4")
			if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
				return "", err
			}
			return "Example Video.mp4", nil
		})

	req := httptest.NewRequest("POST", "/api/download", strings.NewReader(`{"url":"https://example.com/v/1","format":"best"}`))
	w := httptest.NewRecorder()
	env.handlers.StartDownload(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	snapshot := env.pollUntilTerminal(t)
	require.Equal(t, models.StateCompleted, snapshot.State)
	require.Equal(t, "Example Video.mp4", snapshot.ResultFilename)
	require.Equal(t, float64(100), snapshot.Progress)
	require.Empty(t, snapshot.ErrorDetail)

	// Exactly one new artifact, matching the reported filename
	w = httptest.NewRecorder()
	env.handlers.ListFiles(w, httptest.NewRequest("GET", "/api/files", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var listing struct {
		Files []models.DownloadedFile `json:"files"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Len(t, listing.Files, 1)
	require.Equal(t, snapshot.ResultFilename, listing.Files[0].Name)
}

// TestDownloadFailureVisibleOnNextPoll verifies the polling contract for errors
func TestDownloadFailureVisibleOnNextPoll(t *testing.T) {
	env := newTestEnv(t)

	env.client.EXPECT().
		Download(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req ytdlp.DownloadRequest) (string, error) {
			req.Progress(22.0, "Downloading: 22.0%")
			return "", &ytdlp.ExtractionError{Message: "Access denied."}
		})

	req := httptest.NewRequest("POST", "/api/download", strings.NewReader(`{"url":"https://example.com/v/1","format":"best"}`))
	w := httptest.NewRecorder()
	env.handlers.StartDownload(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	snapshot := env.pollUntilTerminal(t)
	require.Equal(t, models.StateFailed, snapshot.State)
	require.Equal(t, "Access denied.", snapshot.ErrorDetail)
	require.Equal(t, 22.0, snapshot.Progress)
	require.Empty(t, snapshot.ResultFilename)
}
