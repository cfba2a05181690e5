package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/lambda-packager/internal/logger"
)

// LockFilename marks that a phase is running in the workspace right now.
const LockFilename = ".packager.lock"

// errWorkspaceBusy is returned when another live packager process holds the lock.
var errWorkspaceBusy = errors.New("another packager process is running in this workspace")

// workspaceLock is a PID file guarding one workspace.
type workspaceLock struct {
	// path is the lock file location.
	path string
	// pid is the process ID written into the lock.
	pid int
}

// lockAttempts bounds how often a stale lock is cleared before giving up.
const lockAttempts = 3

// acquireLock creates path holding the current PID unless a live process already holds it.
// A lock left behind by a dead process is removed and the creation retried.
func acquireLock(ctx context.Context, path string) (*workspaceLock, error) {
	pid := os.Getpid()

	for range lockAttempts {
		err := createLock(path, pid)
		if err == nil {
			return &workspaceLock{path: path, pid: pid}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}

		contents, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// Released between the two calls.
				continue
			}

			return nil, fmt.Errorf("read workspace lock: %w", err)
		}

		holder, parseErr := strconv.Atoi(strings.TrimSpace(string(contents)))
		if parseErr == nil && holder != pid && isProcessAlive(holder) {
			return nil, fmt.Errorf("%w (pid %d, lock %s)", errWorkspaceBusy, holder, path)
		}

		logger.WarnKV(ctx, "Replacing stale workspace lock", "path", path, "holder", strings.TrimSpace(string(contents)))

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale workspace lock: %w", err)
		}
	}

	return nil, fmt.Errorf("%w (lock %s keeps reappearing)", errWorkspaceBusy, path)
}

// createLock atomically creates path with pid as its content; it fails with os.ErrExist when path is present.
func createLock(path string, pid int) error {
	//nolint:gosec // Not a secret.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return err
		}

		return fmt.Errorf("create workspace lock: %w", err)
	}

	_, err = f.WriteString(strconv.Itoa(pid) + "\n")
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("write workspace lock: %w", err)
	}

	return nil
}

// Release removes the lock if it still belongs to this process.
func (l *workspaceLock) Release(ctx context.Context) {
	contents, err := os.ReadFile(l.path)
	if err != nil {
		return
	}

	if strings.TrimSpace(string(contents)) != strconv.Itoa(l.pid) {
		return
	}

	if err = os.Remove(l.path); err != nil {
		logger.WarnKV(ctx, "Unable to remove workspace lock", "path", l.path, "error", err)
	}
}

// isProcessAlive checks the process table for pid.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := ps.FindProcess(pid)

	return err == nil && process != nil
}
