// Package hostlock serializes state-changing devcell operations on a host.
package hostlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultWait is how long Acquire waits for another operation to finish.
const DefaultWait = 5 * time.Second

const retryInterval = 100 * time.Millisecond

// BusyError is returned when another operation holds the lock.
type BusyError struct {
	Path string
}

func (e *BusyError) Error() string {
	return "another devcell operation is in progress"
}

// NextSteps returns suggested remediation steps.
func (e *BusyError) NextSteps() []string {
	return []string{
		"Wait for the other devcell command to finish and try again",
		fmt.Sprintf("If no other devcell command is running, remove the stale lock file: %s", e.Path),
	}
}

// Lock is a held host lock.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the lock at path, waiting up to wait. A zero wait uses
// DefaultWait.
func Acquire(ctx context.Context, path string, wait time.Duration) (*Lock, error) {
	if wait <= 0 {
		wait = DefaultWait
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	fl := flock.New(path)

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	locked, err := fl.TryLockContext(waitCtx, retryInterval)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &BusyError{Path: path}
		}
		return nil, fmt.Errorf("acquiring host lock %s: %w", path, err)
	}
	if !locked {
		return nil, &BusyError{Path: path}
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock. Safe on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
