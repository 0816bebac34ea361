// Package gateway is the key-value persistence boundary. Every value is a
// JSON document stored under a short string key; callers always write whole
// documents, so overlapping writes resolve last-write-wins.
package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Keys of the two persisted records.
const (
	KeyTimers  = "timers"
	KeyHistory = "history"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Gateway stores string-keyed JSON blobs. Implementations serialize their own
// writes; a Set never interleaves with another Set on the same gateway.
type Gateway interface {
	// Get returns ok=false when the key has never been written or was removed.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Watchable is implemented by backends whose blobs live in plain files that
// other processes may rewrite.
type Watchable interface {
	Path(key string) string
}

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)

func checkKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid gateway key %q", key)
	}
	return nil
}

// DefaultDataDir returns $XDG_DATA_HOME/timebox or ~/.local/share/timebox.
func DefaultDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "timebox"), nil
}

// Open constructs the named backend rooted at dir.
func Open(ctx context.Context, backend, dir string) (Gateway, error) {
	switch backend {
	case "", BackendFile:
		return NewFile(dir)
	case BackendSQLite:
		return OpenSQLite(ctx, filepath.Join(dir, "timebox.db"))
	default:
		return nil, fmt.Errorf("unknown persistence backend %q (want %s or %s)", backend, BackendFile, BackendSQLite)
	}
}
