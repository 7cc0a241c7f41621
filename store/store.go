package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jonwraymond/docketcache/resilience"
)

const (
	// SentinelName is the empty placeholder file that marks an initialized
	// store root. It is never removed by Sweep.
	SentinelName = "index"

	// Extension is the file extension of entry records.
	Extension = ".json"

	tempSuffix = ".tmp"
)

// Entry is the persisted unit of the cache.
type Entry struct {
	Group string
	Key   string

	// Kind is the shape tag of Value. Leave empty to have it derived when
	// the entry is written.
	Kind Kind

	// ExpiresAt is an absolute unix time in seconds; 0 means never.
	ExpiresAt int64

	Value any
}

// Expired reports whether the entry has a deadline that now has reached.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != 0 && now.Unix() >= e.ExpiresAt
}

// Config configures a FileStore.
type Config struct {
	// Root is the store directory. Required.
	Root string

	// Compress wraps records in a zstd frame. Readers handle both forms,
	// so toggling it never invalidates existing files.
	Compress bool

	// Now is the clock used for expiry. Default: time.Now.
	Now func() time.Time

	// Retry wraps the rename and unlink steps. Default: a short
	// jittered retry of transient errors.
	Retry *resilience.Retry

	// FileMode is the permission of record files. Default: 0644.
	FileMode fs.FileMode

	// DirMode is the permission of the root directory. Default: 0755.
	DirMode fs.FileMode
}

// FileStore keeps one record file per entry in a single directory.
//
// Writes replace whole files atomically (temp file + rename). There is no
// cross-process locking: two processes updating the same entry race and the
// last rename wins.
type FileStore struct {
	root     string
	compress bool
	now      func() time.Time
	retry    *resilience.Retry
	fileMode fs.FileMode
	dirMode  fs.FileMode

	mu    sync.Mutex
	ready bool
}

// NewFileStore creates a FileStore. The root is not touched until Ensure or
// the first Write.
func NewFileStore(cfg Config) (*FileStore, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, ErrEmptyRoot
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("store: resolve root: %w", err)
	}

	s := &FileStore{
		root:     root,
		compress: cfg.Compress,
		now:      cfg.Now,
		retry:    cfg.Retry,
		fileMode: cfg.FileMode,
		dirMode:  cfg.DirMode,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.retry == nil {
		s.retry = resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:  4,
			InitialDelay: 2 * time.Millisecond,
			MaxDelay:     20 * time.Millisecond,
			Jitter:       true,
		})
	}
	if s.fileMode == 0 {
		s.fileMode = 0o644
	}
	if s.dirMode == 0 {
		s.dirMode = 0o755
	}
	return s, nil
}

// Root returns the absolute store directory.
func (s *FileStore) Root() string {
	return s.root
}

// SentinelPath returns the path of the sentinel marker.
func (s *FileStore) SentinelPath() string {
	return filepath.Join(s.root, SentinelName)
}

// Path returns the record path for a file name produced by a key resolver.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.root, name+Extension)
}

// Ensure creates the root directory and the sentinel marker if needed.
func (s *FileStore) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked()
}

func (s *FileStore) ensureLocked() error {
	if err := os.MkdirAll(s.root, s.dirMode); err != nil {
		s.ready = false
		return fmt.Errorf("store: create root: %w", err)
	}
	f, err := os.OpenFile(s.SentinelPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, s.fileMode)
	switch {
	case err == nil:
		_ = f.Close()
	case errors.Is(err, fs.ErrExist):
	default:
		s.ready = false
		return fmt.Errorf("store: create sentinel: %w", err)
	}
	s.ready = true
	return nil
}

// Ready reports whether Ensure has succeeded since the last failure.
func (s *FileStore) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// SentinelExists reports whether the sentinel marker is present.
func (s *FileStore) SentinelExists() bool {
	info, err := os.Stat(s.SentinelPath())
	return err == nil && info.Mode().IsRegular()
}

// Read loads the record at path.
//
// It returns ErrNotFound when no file exists and ErrMalformed when the file is
// not a record. When the record has expired the file is removed and
// ErrExpired is returned along with the stale entry, so callers can report
// what expired.
func (s *FileStore) Read(ctx context.Context, path string) (*Entry, error) {
	if err := s.checkPath(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: read record: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrMalformed)
	}

	entry, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}

	if entry.Expired(s.now()) {
		if rmErr := s.Remove(ctx, path); rmErr != nil {
			return entry, errors.Join(ErrExpired, rmErr)
		}
		return entry, ErrExpired
	}
	return entry, nil
}

// Write serializes e and atomically replaces the file at path.
func (s *FileStore) Write(ctx context.Context, path string, e *Entry) error {
	if err := s.checkPath(path); err != nil {
		return err
	}

	data, err := Marshal(e, s.compress)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		if err := s.ensureLocked(); err != nil {
			return err
		}
	}

	err = s.replace(ctx, path, data)
	if errors.Is(err, fs.ErrNotExist) {
		// The root was removed underneath us; recreate it once.
		if err := s.ensureLocked(); err != nil {
			return err
		}
		err = s.replace(ctx, path, data)
	}
	return err
}

func (s *FileStore) replace(ctx context.Context, path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+ulid.Make().String()+tempSuffix)
	if err := os.WriteFile(tmp, data, s.fileMode); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: write record: %w", err)
	}

	err := s.retry.Do(ctx, func() error {
		return os.Rename(tmp, path)
	})
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: replace record: %w", err)
	}
	return nil
}

// Remove deletes the record at path. A missing file is not an error.
func (s *FileStore) Remove(ctx context.Context, path string) error {
	if err := s.checkPath(path); err != nil {
		return err
	}

	err := s.retry.Do(ctx, func() error {
		return os.Remove(path)
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: remove record: %w", err)
	}
	return nil
}

// Rewrite replaces only the value of the record at path, keeping its group,
// key and expiry. It returns ErrNotFound when there is nothing to rewrite.
func (s *FileStore) Rewrite(ctx context.Context, path string, value any) error {
	entry, err := s.Read(ctx, path)
	if err != nil {
		if errors.Is(err, ErrExpired) {
			return ErrNotFound
		}
		return err
	}

	entry.Value = value
	entry.Kind = ""
	return s.Write(ctx, path, entry)
}

func (s *FileStore) checkPath(path string) error {
	if filepath.Dir(filepath.Clean(path)) != s.root {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	if filepath.Base(path) == SentinelName {
		return fmt.Errorf("%w: sentinel is not a record", ErrOutsideRoot)
	}
	return nil
}
