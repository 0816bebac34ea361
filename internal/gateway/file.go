package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileGateway keeps one <key>.json file per record in a data directory.
type fileGateway struct {
	mu  sync.Mutex
	dir string
}

// NewFile returns a Gateway backed by files under dir, creating dir if needed.
func NewFile(dir string) (Gateway, error) {
	if dir == "" {
		d, err := DefaultDataDir()
		if err != nil {
			return nil, fmt.Errorf("resolving data directory: %w", err)
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &fileGateway{dir: dir}, nil
}

// Path returns the file holding key.
func (g *fileGateway) Path(key string) string {
	return filepath.Join(g.dir, key+".json")
}

func (g *fileGateway) Get(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(g.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes value atomically via a temp file + os.Rename.
func (g *fileGateway) Set(ctx context.Context, key, value string) (err error) {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	// Same directory so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(g.dir, key+"-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	if err = os.Rename(tmpName, g.Path(key)); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}

func (g *fileGateway) Remove(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := os.Remove(g.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (g *fileGateway) Close() error { return nil }
