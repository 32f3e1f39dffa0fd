// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFile is created in the data directory while a stage runs.
const LockFile = "harvest.lock"

// ErrLocked means another process holds the data directory.
var ErrLocked = errors.New("another harvest run holds the data directory lock")

// RunLock keeps a single sequential worker per data directory.
type RunLock struct {
	fl *flock.Flock
}

// AcquireLock takes the lock without blocking.
func AcquireLock(dataDir string) (*RunLock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	fl := flock.New(filepath.Join(dataDir, LockFile))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &RunLock{fl: fl}, nil
}

// Release drops the lock.
func (l *RunLock) Release() error {
	return l.fl.Unlock()
}
