package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SweepResult reports the outcome of a Sweep.
type SweepResult struct {
	// Removed is the number of files deleted.
	Removed int

	// Skipped is the number of files that could not be deleted.
	Skipped int

	// SentinelIntact is true when the sentinel marker still exists after
	// the sweep.
	SentinelIntact bool
}

// Sweep walks the root recursively and deletes every regular file except the
// sentinel marker. Files that cannot be deleted are counted and skipped; the
// sweep never stops early. The root directory itself is left in place.
//
// The returned error is non-nil only when the root cannot be walked at all.
func (s *FileStore) Sweep() (SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res SweepResult
	sentinel := s.SentinelPath()

	walkErr := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			res.Skipped++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || path == sentinel {
			return nil
		}
		if rmErr := os.Remove(path); rmErr != nil {
			if !errors.Is(rmErr, fs.ErrNotExist) {
				res.Skipped++
			}
			return nil
		}
		res.Removed++
		return nil
	})

	res.SentinelIntact = s.SentinelExists()
	if !res.SentinelIntact {
		s.ready = false
	}
	if walkErr != nil {
		return res, fmt.Errorf("store: sweep: %w", walkErr)
	}
	return res, nil
}

// Usage describes the record files currently in the store.
type Usage struct {
	Entries int
	Bytes   int64
}

// Usage counts record files and their total size. Temp files and the
// sentinel are not counted.
func (s *FileStore) Usage() (Usage, error) {
	var u Usage
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			return nil
		}
		if !d.Type().IsRegular() || filepath.Ext(path) != Extension || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		u.Entries++
		u.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return u, fmt.Errorf("store: usage: %w", err)
	}
	return u, nil
}
