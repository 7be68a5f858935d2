// Package models defines the data structures used throughout the application
package models

import (
	"time"
)

// SessionState represents the current state of a download session
type SessionState string

const (
	StateIdle         SessionState = "idle"
	StateFetchingInfo SessionState = "fetching_info"
	StateDownloading  SessionState = "downloading"
	StateCompleted    SessionState = "completed"
	StateFailed       SessionState = "failed"
)

// IsTerminal reports whether the state is completed or failed
func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// IsBusy reports whether the state blocks new downloads or info fetches
func (s SessionState) IsBusy() bool {
	return s == StateFetchingInfo || s == StateDownloading
}

// DownloadSession represents one active or completed download
type DownloadSession struct {
	ID             string       `json:"id"`
	SourceURL      string       `json:"url"`
	FormatID       string       `json:"format"`
	State          SessionState `json:"state"`
	Progress       float64      `json:"progress"`
	StatusMessage  string       `json:"status"`
	ResultFilename string       `json:"filename"`
	ErrorDetail    string       `json:"error"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
}

// DownloadedFile represents a completed artifact in the output directory
type DownloadedFile struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}
