package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jwebster45206/questscript/pkg/trigger"
)

var (
	// ErrInvalidPath is returned for resource names that leave their directory.
	ErrInvalidPath = errors.New("invalid resource path")
	ErrNotFound    = errors.New("not found")
)

func isTriggerFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// resolve joins name onto dir, rejecting names that escape it.
func resolve(dir, name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, name)
	}
	return filepath.Join(dir, name), nil
}

// ListTriggerFiles returns trigger file names relative to the triggers
// directory, sorted
func (r *RedisStorage) ListTriggerFiles(ctx context.Context) ([]string, error) {
	triggersDir := filepath.Join(r.dataDir, "triggers")
	var files []string

	err := filepath.WalkDir(triggersDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == triggersDir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !isTriggerFile(path) {
			return nil
		}
		rel, err := filepath.Rel(triggersDir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to walk triggers directory", "error", err)
		return nil, fmt.Errorf("failed to list trigger files: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

func (r *RedisStorage) GetTriggers(ctx context.Context, filename string) (*trigger.Set, error) {
	path, err := resolve(filepath.Join(r.dataDir, "triggers"), filename)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("Loading triggers", "filename", filename, "full_path", path)

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("triggers %w: %s", ErrNotFound, filename)
	}
	set, err := r.loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	for _, skipped := range set.Skipped {
		r.logger.Warn("Skipped trigger entry", "filename", filename, "error", skipped)
	}
	return set, nil
}
