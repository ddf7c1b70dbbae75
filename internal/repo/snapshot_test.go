package repo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "api"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.js"), []byte("const app = require('express')()\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "api", "routes.js"), []byte("module.exports = {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SECRET=1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))

	snap, err := OpenDir(dir, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = snap.Close() })
	return snap
}

func TestListFilesSkipsDotEntries(t *testing.T) {
	snap := newTestSnapshot(t)

	files, err := snap.ListFiles()
	require.NoError(t, err)
	require.Equal(t, []string{"server.js", "src/api/routes.js"}, files)
}

func TestListFilesIsDeterministic(t *testing.T) {
	snap := newTestSnapshot(t)

	first, err := snap.ListFiles()
	require.NoError(t, err)
	second, err := snap.ListFiles()
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestReadFileReturnsContent(t *testing.T) {
	snap := newTestSnapshot(t)

	content, err := snap.ReadFile("src/api/routes.js")
	require.NoError(t, err)
	require.Equal(t, "module.exports = {}\n", content)
}

func TestReadFileMissingPathIsNotFound(t *testing.T) {
	snap := newTestSnapshot(t)

	_, err := snap.ReadFile("no/such/file.js")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadFileRejectsTraversal(t *testing.T) {
	snap := newTestSnapshot(t)

	_, err := snap.ReadFile("../outside.txt")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = snap.ReadFile("/etc/passwd")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadFileTruncatesOversizedContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), []byte("0123456789"), 0o644))

	snap, err := OpenDir(dir, Options{MaxFileBytes: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = snap.Close() })

	content, err := snap.ReadFile("big.txt")
	require.NoError(t, err)
	require.Equal(t, "0123\n[truncated]", content)
}

func TestCloseRemovesStorageEvenAfterFailedRead(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

	snap, err := OpenDir(dir, Options{})
	require.NoError(t, err)

	_, err = snap.ReadFile("missing.txt")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, snap.Close())
	_, statErr := os.Stat(dir)
	require.True(t, os.IsNotExist(statErr))

	// Idempotent.
	require.NoError(t, snap.Close())
}

func TestOpenRejectsEmptyURL(t *testing.T) {
	_, err := Open(context.Background(), Ref{}, Options{CloneTimeout: time.Second})
	var accessErr *AccessError
	require.True(t, errors.As(err, &accessErr))
}

// newFixtureRepo initializes a local git repository with one commit on
// branch main and returns its file:// URL.
func newFixtureRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skipf("git not available: %v", err)
	}

	dir := t.TempDir()
	run := func(args ...string) {
		c := exec.Command("git", args...)
		c.Dir = dir
		if out, err := c.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v, out=%s", args, err, string(out))
		}
	}

	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.js"), []byte("const app = require('express')()\n"), 0o644))
	run("add", "server.js")
	run("commit", "-m", "initial")
	run("branch", "-M", "main")

	return "file://" + dir
}

func TestOpenClonesBranch(t *testing.T) {
	url := newFixtureRepo(t)

	snap, err := Open(context.Background(), Ref{URL: url, Branch: "main"}, Options{CloneTimeout: 30 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = snap.Close() })

	files, err := snap.ListFiles()
	require.NoError(t, err)
	require.Equal(t, []string{"server.js"}, files)

	content, err := snap.ReadFile("server.js")
	require.NoError(t, err)
	require.Equal(t, "const app = require('express')()\n", content)

	dir := snap.dir
	require.NoError(t, snap.Close())
	_, statErr := os.Stat(dir)
	require.True(t, os.IsNotExist(statErr))
}

func TestOpenEmptyBranchUsesRemoteDefault(t *testing.T) {
	url := newFixtureRepo(t)

	snap, err := Open(context.Background(), Ref{URL: url}, Options{CloneTimeout: 30 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = snap.Close() })

	files, err := snap.ListFiles()
	require.NoError(t, err)
	require.Equal(t, []string{"server.js"}, files)
}

func TestOpenUnknownBranchIsAccessError(t *testing.T) {
	url := newFixtureRepo(t)
	workDir := t.TempDir()

	_, err := Open(context.Background(), Ref{URL: url, Branch: "no-such-branch"}, Options{
		CloneTimeout: 30 * time.Second,
		WorkDir:      workDir,
	})
	var accessErr *AccessError
	require.True(t, errors.As(err, &accessErr))

	// The failed clone must not leave a checkout behind.
	entries, readErr := os.ReadDir(workDir)
	require.NoError(t, readErr)
	require.Empty(t, entries)
}
