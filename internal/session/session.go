// Package session provides run identity for the reconciliation engine: unique
// session ids, the input hash that gates resume offers, and a file lock that
// keeps two bamsync processes from executing against the same state directory
// at once.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	// lockFileName is the advisory lock file created in the state directory.
	lockFileName = ".run.lock"

	// lockTimeout is the maximum time Acquire waits for a competing run.
	lockTimeout = 30 * time.Second

	// lockPollInterval is how often to retry acquiring the lock.
	lockPollInterval = 50 * time.Millisecond
)

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// HashInput returns the SHA-256 of the input CSV bytes as lowercase hex. The
// checkpoint store compares it against in-progress sessions to decide whether
// a resume may be offered.
func HashInput(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile hashes a CSV file's bytes.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input file: %w", err)
	}
	return HashInput(data), nil
}

// Lock is a single-owner advisory lock over a state directory. Two processes
// writing checkpoints and change logs for the same directory would corrupt
// each other's sessions.
type Lock struct {
	flock *flock.Flock
}

// NewLock creates a lock rooted in the given state directory. The directory
// is created if missing.
func NewLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return &Lock{flock: flock.New(filepath.Join(dir, lockFileName))}, nil
}

// TryAcquire attempts to take the lock without blocking. Returns false when
// another process holds it.
func (l *Lock) TryAcquire() (bool, error) {
	locked, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	return locked, nil
}

// Acquire polls for the lock until it is taken, the context is done, or the
// timeout elapses.
func (l *Lock) Acquire(ctx context.Context) error {
	start := time.Now()
	timeoutCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	for {
		locked, err := l.flock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire session lock: %w", err)
		}
		if locked {
			return nil
		}
		select {
		case <-timeoutCtx.Done():
			return fmt.Errorf("timeout waiting for session lock after %v (another bamsync run may be in progress)",
				time.Since(start).Round(time.Millisecond))
		case <-time.After(lockPollInterval):
		}
	}
}

// Release releases the lock. Safe to call multiple times.
func (l *Lock) Release() error {
	if l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.flock.Path()
}
