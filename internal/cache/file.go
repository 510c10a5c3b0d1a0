package cache

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// FileStore keeps one JSON document per snapshot under
// <dir>/u-<user>/p-<project>/<sprint|range>.json.
type FileStore struct {
	dir  string
	opts options
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the cache directory if needed.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	o := newOptions(opts)
	if o.prefix != "" {
		dir = filepath.Join(dir, o.prefix)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{dir: dir, opts: o}, nil
}

func (f *FileStore) userDir(userID string) string {
	return filepath.Join(f.dir, "u-"+url.PathEscape(userID))
}

func (f *FileStore) projectDir(userID, projectKey string) string {
	return filepath.Join(f.userDir(userID), "p-"+url.PathEscape(projectKey))
}

func (f *FileStore) path(userID, projectKey string, sprintID *int) string {
	return filepath.Join(f.projectDir(userID, projectKey), sprintKey(sprintID)+".json")
}

func (f *FileStore) Get(ctx context.Context, userID, projectKey string, sprintID *int, maxAge time.Duration) (*Snapshot, error) {
	snap, err := f.read(f.path(userID, projectKey, sprintID))
	if err != nil || snap == nil {
		return nil, err
	}
	if expired(f.opts.now(), snap.CapturedAt, maxAge) {
		return nil, nil
	}
	return snap, nil
}

func (f *FileStore) GetAll(ctx context.Context, userID, projectKey string, maxAge time.Duration) ([]Snapshot, error) {
	files, err := filepath.Glob(filepath.Join(f.projectDir(userID, projectKey), "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list cache files: %w", err)
	}

	now := f.opts.now()
	var out []Snapshot
	for _, p := range files {
		snap, err := f.read(p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("Skipping unreadable cache file")
			continue
		}
		if snap == nil || expired(now, snap.CapturedAt, maxAge) {
			continue
		}
		out = append(out, *snap)
	}
	sortSnapshots(out)
	return out, nil
}

func (f *FileStore) Put(ctx context.Context, snap Snapshot) error {
	if err := validateKey(snap.UserID, snap.ProjectKey); err != nil {
		return err
	}

	path := f.path(snap.UserID, snap.ProjectKey, snap.SprintID)
	var prev *time.Time
	if existing, err := f.read(path); err == nil && existing != nil {
		prev = &existing.CapturedAt
	}
	snap.CapturedAt = stamp(f.opts.now(), prev)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()

	writer := bufio.NewWriter(tmp)
	if err := json.NewEncoder(writer).Encode(snap); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := writer.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	log.Debug().Str("path", path).Int("issues", len(snap.Issues)).Msg("Snapshot written")
	return nil
}

func (f *FileStore) Delete(ctx context.Context, userID, projectKey string) error {
	target := f.userDir(userID)
	if projectKey != "" {
		target = f.projectDir(userID, projectKey)
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}

func (f *FileStore) List(ctx context.Context, userID string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(f.userDir(userID), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".json") {
			return nil
		}
		snap, err := f.read(p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("Skipping unreadable cache file")
			return nil
		}
		if snap != nil {
			entries = append(entries, entryOf(*snap))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cache: %w", err)
	}
	sortEntries(entries)
	return entries, nil
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) read(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode cache file %s: %w", filepath.Base(path), err)
	}
	return &snap, nil
}
