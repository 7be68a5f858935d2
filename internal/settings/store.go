// Package settings persists user preferences in a JSON file
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Settings represents the user-adjustable preferences
type Settings struct {
	PreferredFormat string `json:"preferred_format"`
	AutoDownload    bool   `json:"auto_download"`
	ShowProgress    bool   `json:"show_progress"`
	Theme           string `json:"ui_theme"`
}

// Defaults returns the settings used when no file exists yet
func Defaults() Settings {
	return Settings{
		PreferredFormat: "",
		AutoDownload:    false,
		ShowProgress:    true,
		Theme:           "light",
	}
}

// Store loads and saves settings, serializing concurrent access
type Store struct {
	path string

	mu      sync.RWMutex
	current Settings
}

// NewStore creates a store backed by the given file path. A missing file
// yields defaults; a corrupt one is an error so it isn't silently clobbered.
func NewStore(path string) (*Store, error) {
	store := &Store{
		path:    path,
		current: Defaults(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := json.Unmarshal(data, &store.current); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	if err := store.current.validate(); err != nil {
		return nil, fmt.Errorf("invalid settings file %s: %w", path, err)
	}

	return store, nil
}

// Get returns a copy of the current settings
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates and persists new settings
func (s *Store) Update(settings Settings) error {
	if err := settings.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	s.current = settings
	return nil
}

func (s Settings) validate() error {
	if s.Theme != "light" && s.Theme != "dark" {
		return fmt.Errorf("invalid theme %q, must be light or dark", s.Theme)
	}
	return nil
}
