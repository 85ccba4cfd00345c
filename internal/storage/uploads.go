// Package storage manages the uploads directory: validated, sanitized,
// timestamped filenames for originals and the annotated images returned by
// the detection service.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ecosort/wastelens/internal/logger"
)

// UploadStore persists uploaded and annotated images on local disk.
type UploadStore struct {
	dir         string
	allowedExts map[string]struct{}
	logger      *logger.Logger
}

// UploadConfig contains upload store configuration.
type UploadConfig struct {
	Dir               string
	AllowedExtensions []string
}

// NewUploadStore creates the store and ensures the uploads directory exists.
func NewUploadStore(cfg UploadConfig, log *logger.Logger) (*UploadStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("uploads directory not configured")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}

	return &UploadStore{
		dir:         cfg.Dir,
		allowedExts: allowed,
		logger:      log,
	}, nil
}

// Dir returns the uploads directory path.
func (s *UploadStore) Dir() string {
	return s.dir
}

// AllowedExtensions returns the accepted extensions, for error messages.
func (s *UploadStore) AllowedExtensions() []string {
	exts := make([]string, 0, len(s.allowedExts))
	for ext := range s.allowedExts {
		exts = append(exts, ext)
	}
	return exts
}

// Allowed reports whether the filename carries an accepted image extension.
func (s *UploadStore) Allowed(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return false
	}
	_, ok := s.allowedExts[ext]
	return ok
}

// SaveUpload writes an uploaded image under a sanitized, timestamped name
// and returns the stored filename.
func (s *UploadStore) SaveUpload(filename string, data []byte) (string, error) {
	name := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), sanitizeFilename(filename))
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}

	s.logger.Debug("Upload saved", "file", name, "bytes", len(data))
	return name, nil
}

// SaveAnnotated writes the annotated image produced for a stored upload and
// returns its filename.
func (s *UploadStore) SaveAnnotated(uploadName string, data []byte) (string, error) {
	name := "detected_" + filepath.Base(uploadName)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save annotated image: %w", err)
	}

	s.logger.Debug("Annotated image saved", "file", name, "bytes", len(data))
	return name, nil
}

// Remove deletes stored files, ignoring ones that are already gone. Used to
// clean up after a failed detection.
func (s *UploadStore) Remove(names ...string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		path := filepath.Join(s.dir, filepath.Base(name))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove stored file", "file", name, "error", err)
		}
	}
}

// sanitizeFilename strips path components and unsafe characters. An empty
// result falls back to a generated name so uploads never collide on "".
func sanitizeFilename(filename string) string {
	base := filepath.Base(filename)
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return uuid.NewString()
	}
	return out
}
