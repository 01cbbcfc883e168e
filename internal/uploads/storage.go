// Package uploads persists raw attachment payloads to per-owner directories
// and hands back stable reference paths for the stored files.
package uploads

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RefPrefix is the URL prefix under which stored attachments are served.
const RefPrefix = "/uploads"

// File is a single raw attachment payload from a create/update request.
type File struct {
	Name string // original filename, used only for its extension
	Data []byte
}

// Storage manages attachment filesystem operations.
// Thread-safe for concurrent requests; destination names never collide
// within a single process even when the millisecond clock ties.
type Storage struct {
	basePath string
	mu       sync.Mutex // serializes name generation and writes
}

// NewStorage creates a Storage rooted at basePath, creating it if absent.
// Each owner gets a subdirectory {basePath}/{ownerID}/.
func NewStorage(basePath string) (*Storage, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}

	return &Storage{basePath: basePath}, nil
}

// EnsureNamespace creates the per-owner directory if it doesn't exist yet.
func (s *Storage) EnsureNamespace(ownerID string) error {
	dir, err := s.namespaceDir(ownerID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create namespace for %s: %w", ownerID, err)
	}
	return nil
}

// SaveAll ingests a batch of files for one owner and returns their reference
// paths in input order. The whole batch fails on the first error; files
// already written for the failed batch are left for the caller to clean up
// via Remove (callers must not record references from a failed batch).
func (s *Storage) SaveAll(ownerID string, files []File) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}

	if err := s.EnsureNamespace(ownerID); err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(files))
	for _, f := range files {
		ref, err := s.Save(ownerID, f.Name, f.Data)
		if err != nil {
			return refs, err
		}
		refs = append(refs, ref)
	}

	return refs, nil
}

// Save writes a single attachment and returns its reference path.
// The stored name is the current Unix millisecond timestamp plus the original
// extension, with a numeric suffix when that name is already taken.
func (s *Storage) Save(ownerID, originalName string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("attachment data cannot be empty")
	}

	dir, err := s.namespaceDir(ownerID)
	if err != nil {
		return "", err
	}
	if err := s.EnsureNamespace(ownerID); err != nil {
		return "", err
	}

	ext := sanitizeExt(originalName)

	s.mu.Lock()
	defer s.mu.Unlock()

	name, dest, err := s.nextName(dir, ext)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}

	return path.Join(RefPrefix, ownerID, name), nil
}

// Get reads a stored attachment back by its reference path.
func (s *Storage) Get(ref string) ([]byte, error) {
	dest, err := s.resolveRef(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(dest) //#nosec G304 -- resolveRef confines the path to basePath
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("attachment not found for %s: %w", ref, err)
		}
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	return data, nil
}

// Remove deletes a stored attachment by its reference path.
// Missing files are not an error; used for best-effort cleanup after a
// failed persistence step.
func (s *Storage) Remove(ref string) error {
	dest, err := s.resolveRef(ref)
	if err != nil {
		return err
	}

	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove attachment: %w", err)
	}
	return nil
}

// BasePath returns the uploads root directory.
func (s *Storage) BasePath() string {
	return s.basePath
}

// nextName picks a destination name unique within dir. Must be called with
// the mutex held so concurrent saves in the same millisecond can't race the
// existence check.
func (s *Storage) nextName(dir, ext string) (string, string, error) {
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	name := stamp + ext
	dest := filepath.Join(dir, name)
	for n := 1; ; n++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			return name, dest, nil
		} else if err != nil && !os.IsExist(err) {
			return "", "", fmt.Errorf("failed to probe destination name: %w", err)
		}
		name = fmt.Sprintf("%s-%d%s", stamp, n, ext)
		dest = filepath.Join(dir, name)
	}
}

// namespaceDir maps an owner ID to its directory, rejecting IDs that would
// escape the uploads root.
func (s *Storage) namespaceDir(ownerID string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("owner ID cannot be empty")
	}
	if ownerID != filepath.Base(ownerID) || ownerID == "." || ownerID == ".." {
		return "", fmt.Errorf("invalid owner ID %q", ownerID)
	}
	return filepath.Join(s.basePath, ownerID), nil
}

// resolveRef maps a reference path back to a filesystem path under basePath.
func (s *Storage) resolveRef(ref string) (string, error) {
	trimmed, ok := strings.CutPrefix(ref, RefPrefix+"/")
	if !ok {
		return "", fmt.Errorf("invalid attachment reference %q", ref)
	}

	parts := strings.Split(path.Clean(trimmed), "/")
	if len(parts) != 2 || parts[0] == ".." || parts[1] == ".." {
		return "", fmt.Errorf("invalid attachment reference %q", ref)
	}

	return filepath.Join(s.basePath, parts[0], parts[1]), nil
}

// sanitizeExt extracts a safe lowercase extension from the original filename.
func sanitizeExt(originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if len(ext) < 2 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
