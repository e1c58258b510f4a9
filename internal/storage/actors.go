package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jwebster45206/questscript/pkg/actor"
)

// Actor operations (filesystem-backed)

func (r *RedisStorage) GetActor(ctx context.Context, actorID string) (*actor.Actor, error) {
	path, err := resolve(filepath.Join(r.dataDir, "actors"), actorID+".json")
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("actor %w: %s", ErrNotFound, actorID)
	}
	return actor.Load(path)
}

func (r *RedisStorage) ListActors(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.dataDir, "actors"))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read actors directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	return ids, nil
}
