// Package platform keeps two engines from ticking the same data directory.
package platform

import (
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"path/filepath"
	"syscall"
)

// ErrAlreadyRunning indicates another engine already holds the data directory.
var ErrAlreadyRunning = errors.New("timebox is already running for this data directory")

// InstanceGuard holds the single-instance lock for one data directory.
type InstanceGuard struct {
	listener net.Listener
	address  string
}

// AcquireSingleInstance binds a localhost port derived from dataDir. The
// port is released by the OS if the process dies, so a crash never leaves a
// stale lock behind.
func AcquireSingleInstance(dataDir string) (*InstanceGuard, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, err
	}
	address := fmt.Sprintf("127.0.0.1:%d", portFor(filepath.Clean(abs)))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("%w (%s)", ErrAlreadyRunning, abs)
		}
		return nil, fmt.Errorf("acquiring instance lock on %s: %w", address, err)
	}
	return &InstanceGuard{listener: listener, address: address}, nil
}

// Release frees the lock. It is safe on a nil guard.
func (guard *InstanceGuard) Release() error {
	if guard == nil || guard.listener == nil {
		return nil
	}
	return guard.listener.Close()
}

// Address returns the bound address.
func (guard *InstanceGuard) Address() string {
	if guard == nil {
		return ""
	}
	return guard.address
}

func portFor(key string) int {
	const (
		minPort = 20000
		maxPort = 39999
	)
	hash := fnv.New32a()
	_, _ = hash.Write([]byte("timebox:" + key))
	rangeSize := maxPort - minPort + 1
	return minPort + int(hash.Sum32()%uint32(rangeSize))
}
