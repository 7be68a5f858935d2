// Package files enumerates completed downloads in the output directory
package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"video-downloader/pkg/models"
)

// ErrDirectoryUnavailable signals that the output directory exists but
// cannot be read; a missing directory is reported as an empty listing
var ErrDirectoryUnavailable = errors.New("downloads directory unavailable")

// ErrInvalidFilename signals a name that escapes the output directory
var ErrInvalidFilename = errors.New("invalid filename")

// Registry provides on-demand, uncached views of the output directory
type Registry struct {
	dir string
}

// NewRegistry creates a registry over the given output directory
func NewRegistry(dir string) *Registry {
	return &Registry{dir: filepath.Clean(dir)}
}

// Dir returns the output directory the registry reads from
func (r *Registry) Dir() string {
	return r.dir
}

// List re-reads the output directory and returns its files newest first.
// The listing is recomputed fully on every call; nothing is cached.
func (r *Registry) List() ([]models.DownloadedFile, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		// The directory appears once the first download finishes
		if errors.Is(err, os.ErrNotExist) {
			return []models.DownloadedFile{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	files := make([]models.DownloadedFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, models.DownloadedFile{
			Name:     entry.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Modified.After(files[j].Modified)
	})

	return files, nil
}

// Resolve maps a client-supplied filename to its path inside the output
// directory, rejecting empty names and anything that escapes the directory
func (r *Registry) Resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidFilename
	}

	if strings.ContainsRune(name, os.PathSeparator) || strings.Contains(name, "/") {
		return "", ErrInvalidFilename
	}

	fullPath := filepath.Clean(filepath.Join(r.dir, name))
	if !strings.HasPrefix(fullPath, r.dir+string(filepath.Separator)) {
		return "", ErrInvalidFilename
	}

	return fullPath, nil
}
