package packager

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAcquireLock covers a fresh lock, a live holder and a stale holder.
func TestAcquireLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("fresh", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), LockFilename)

		lock, err := acquireLock(ctx, path)
		require.NoError(t, err)

		contents, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(contents))

		lock.Release(ctx)

		_, err = os.Stat(path)
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("held by live process", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), LockFilename)
		holder := strconv.Itoa(os.Getppid())
		require.NoError(t, os.WriteFile(path, []byte(holder+"\n"), 0o644))

		_, err := acquireLock(ctx, path)
		require.ErrorIs(t, err, errWorkspaceBusy)

		contents, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, holder+"\n", string(contents))
	})

	t.Run("stale", func(t *testing.T) {
		t.Parallel()

		for _, stale := range []string{"999999999", "not-a-pid", ""} {
			path := filepath.Join(t.TempDir(), LockFilename)
			require.NoError(t, os.WriteFile(path, []byte(stale), 0o644))

			lock, err := acquireLock(ctx, path)
			require.NoError(t, err, stale)

			lock.Release(ctx)
		}
	})
}

// TestCreateLock_Exclusive lets only the first creator take the lock file.
func TestCreateLock_Exclusive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), LockFilename)

	require.NoError(t, createLock(path, 100))
	require.ErrorIs(t, createLock(path, 200), os.ErrExist)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "100\n", string(contents))
}

// TestAcquireLock_Concurrent grants the lock once when held by a live process.
func TestAcquireLock_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), LockFilename)

	// The parent process stands in for a packager that won the race.
	require.NoError(t, createLock(path, os.Getppid()))

	const workers = 8

	errs := make(chan error, workers)
	for range workers {
		go func() {
			_, err := acquireLock(ctx, path)
			errs <- err
		}()
	}

	for range workers {
		require.ErrorIs(t, <-errs, errWorkspaceBusy)
	}
}

// TestRelease_KeepsForeignLock leaves a lock that another process took over.
func TestRelease_KeepsForeignLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), LockFilename)

	lock, err := acquireLock(ctx, path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("12345\n"), 0o644))
	lock.Release(ctx)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "12345\n", string(contents))
}

// TestRun_WorkspaceBusy refuses to run while another process holds the workspace.
func TestRun_WorkspaceBusy(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.path(LockFilename), []byte(strconv.Itoa(os.Getppid())), 0o644))

	err := Run(context.Background(), h.options("install"))
	require.ErrorIs(t, err, errWorkspaceBusy)
	require.Empty(t, h.runner.commands)
}
