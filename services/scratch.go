package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"audioembed/types"

	"github.com/google/uuid"
)

// Scratch hands out collision-free scratch file names inside one dedicated
// directory. It holds no locks: uniqueness comes from random v4 UUIDs, so any
// number of requests may share a Scratch concurrently.
type Scratch struct {
	dir string
}

// NewScratch creates (if needed) and validates the scratch directory
func NewScratch(dir string) (*Scratch, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, types.NewError(types.KindResource, -1, "", errors.New("scratch directory not configured"))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, types.NewError(types.KindResource, -1, dir, err)
	}
	if abs == filepath.Dir(abs) {
		return nil, types.NewError(types.KindResource, -1, dir, errors.New("refusing to use the filesystem root as scratch directory"))
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, types.NewError(types.KindResource, -1, dir, fmt.Errorf("create scratch directory: %w", err))
	}
	return &Scratch{dir: abs}, nil
}

// Dir returns the absolute scratch directory
func (s *Scratch) Dir() string {
	return s.dir
}

// Allocate returns a new random identifier. uuid.NewRandom reads crypto/rand.
func (s *Scratch) Allocate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", types.NewError(types.KindResource, -1, "", fmt.Errorf("allocate scratch id: %w", err))
	}
	return id.String(), nil
}

// PathFor resolves the file for id with the given extension
func (s *Scratch) PathFor(id, ext string) string {
	return filepath.Join(s.dir, id+"."+strings.TrimPrefix(ext, "."))
}

// Release removes every file belonging to id. Calling it twice is harmless.
func (s *Scratch) Release(id string) error {
	if id == "" {
		return nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return types.NewError(types.KindResource, -1, id, fmt.Errorf("not a scratch id: %w", err))
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, id+".*"))
	if err != nil {
		return types.NewError(types.KindResource, -1, id, err)
	}
	var errs []error
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return types.NewError(types.KindResource, -1, id, errors.Join(errs...))
	}
	return nil
}

// Files lists whatever currently sits in the scratch directory
func (s *Scratch) Files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	return files, nil
}
