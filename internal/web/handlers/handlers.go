// Package handlers provides the JSON HTTP handlers for the API
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"video-downloader/internal/files"
	"video-downloader/internal/session"
	"video-downloader/internal/settings"
	"video-downloader/internal/ytdlp"
)

// Handlers contains all HTTP handlers and their dependencies
type Handlers struct {
	tracker  *session.Tracker
	registry *files.Registry
	settings *settings.Store
	client   ytdlp.Client
	logger   *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(tracker *session.Tracker, registry *files.Registry, store *settings.Store, client ytdlp.Client) *Handlers {
	return &Handlers{
		tracker:  tracker,
		registry: registry,
		settings: store,
		client:   client,
		logger:   slog.Default(),
	}
}

// apiResponse is the envelope for operations without a payload
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type infoRequest struct {
	URL string `json:"url"`
}

type downloadRequest struct {
	URL      string `json:"url"`
	Format   string `json:"format"`
	Filename string `json:"filename"`
}

// Health reports service liveness and whether yt-dlp is reachable
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := map[string]any{"ok": true}
	if version, err := h.client.Version(ctx); err != nil {
		response["ytdlp_available"] = false
	} else {
		response["ytdlp_available"] = true
		response["ytdlp_version"] = version
	}

	h.writeJSON(w, http.StatusOK, response)
}

// GetVideoInfo handles metadata queries for a URL
func (h *Handlers) GetVideoInfo(w http.ResponseWriter, r *http.Request) {
	var req infoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "Invalid request body"})
		return
	}

	info, err := h.tracker.FetchInfo(r.Context(), req.URL)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"info":    info,
	})
}

// StartDownload launches a background download
func (h *Handlers) StartDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "Invalid request body"})
		return
	}

	if req.Format == "" {
		if preferred := h.settings.Get().PreferredFormat; preferred != "" {
			req.Format = preferred
		}
	}

	id, err := h.tracker.StartDownload(req.URL, req.Format, req.Filename)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("Download submitted", "session_id", id, "url", req.URL, "format", req.Format)
	h.writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "Download started"})
}

// GetStatus returns the current session snapshot for pollers
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.tracker.Status())
}

// ResetSession returns the tracker to idle after a finished download
func (h *Handlers) ResetSession(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.Reset(); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

// CancelDownload aborts the in-flight download
func (h *Handlers) CancelDownload(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.Cancel(); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "Cancellation requested"})
}

// ListFiles enumerates the output directory
func (h *Handlers) ListFiles(w http.ResponseWriter, r *http.Request) {
	downloaded, err := h.registry.List()
	if err != nil {
		h.logger.Error("Failed to list downloads", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, apiResponse{Success: false, Error: "Downloads directory is unavailable"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"files": downloaded})
}

// ServeFile streams a completed download to the client
func (h *Handlers) ServeFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")

	path, err := h.registry.Resolve(name)
	if err != nil {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

// GetSettings returns the persisted user preferences
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.settings.Get())
}

// UpdateSettings validates and persists new preferences
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "Invalid request body"})
		return
	}

	if err := h.settings.Update(req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, h.settings.Get())
}

// writeError maps tracker errors onto status codes and the JSON envelope.
// Extraction failures keep a 200 status with success=false, matching the
// contract the polling client expects.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	var extractionErr *ytdlp.ExtractionError

	switch {
	case errors.Is(err, session.ErrInvalidURL):
		h.writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "Please enter a valid URL"})
	case errors.Is(err, session.ErrSessionBusy):
		h.writeJSON(w, http.StatusConflict, apiResponse{Success: false, Error: "A download is already in progress"})
	case errors.Is(err, session.ErrInvalidTransition):
		h.writeJSON(w, http.StatusConflict, apiResponse{Success: false, Error: err.Error()})
	case errors.As(err, &extractionErr):
		h.writeJSON(w, http.StatusOK, apiResponse{Success: false, Error: extractionErr.Message})
	default:
		h.logger.Error("Request failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Error: err.Error()})
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}
