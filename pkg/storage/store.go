package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrSessionNotFound is returned when a session id has no directory under
// the storage root.
var ErrSessionNotFound = errors.New("session not found")

// Store manages the directory tree holding all recorded sessions.
type Store struct {
	baseDir string
}

// NewStore ensures the storage root exists and returns a store over it.
func NewStore(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("storage directory must not be empty")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// BaseDir reports the storage root path.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Layout builds the session layout without touching the filesystem.
func (s *Store) Layout(sessionID string) Layout {
	return BuildLayout(s.baseDir, sessionID)
}

// Create prepares the directory for a new session and returns its layout.
func (s *Store) Create(sessionID string) (Layout, error) {
	layout := s.Layout(sessionID)
	if err := os.MkdirAll(layout.Root, 0o755); err != nil {
		return Layout{}, fmt.Errorf("create session directory: %w", err)
	}
	return layout, nil
}

// List returns all session ids under the storage root, most recent first
// (ids embed no ordering, so lexical descending matches the original
// directory listing behaviour).
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read storage root: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), DirPrefix) {
			ids = append(ids, strings.TrimPrefix(entry.Name(), DirPrefix))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Delete removes a session directory and everything in it, non-recoverably.
func (s *Store) Delete(sessionID string) error {
	layout := s.Layout(sessionID)
	if _, err := os.Stat(layout.Root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("stat session directory: %w", err)
	}
	if err := os.RemoveAll(layout.Root); err != nil {
		return fmt.Errorf("delete session directory: %w", err)
	}
	return nil
}

// SessionSize reports the total bytes used by one session directory.
func (s *Store) SessionSize(sessionID string) (int64, error) {
	return dirSize(s.Layout(sessionID).Root)
}

// TotalSize reports the bytes used by all sessions under the storage root.
func (s *Store) TotalSize() (int64, error) {
	return dirSize(s.baseDir)
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %q: %w", root, err)
	}
	return total, nil
}

// WriteMetadata marshals doc and writes it atomically via a temp file and
// rename, so readers never observe a partial metadata document.
func WriteMetadata(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "metadata-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create metadata temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close metadata temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace metadata: %w", err)
	}
	return nil
}

// ReadMetadata unmarshals a metadata document into out. A missing file is
// reported as ErrSessionNotFound.
func ReadMetadata(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("read metadata: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	return nil
}
