package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound reports a path that does not exist under the checkout.
var ErrNotFound = errors.New("file not found in snapshot")

// Ref identifies a remote repository and branch. It is not a live resource.
type Ref struct {
	URL    string `json:"url"`
	Branch string `json:"branch"`
}

// AccessError wraps clone failures: timeout, authentication, unknown branch.
type AccessError struct {
	Ref Ref
	Err error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("repository access failed for %s (branch %s): %v", e.Ref.URL, e.Ref.Branch, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// Options controls snapshot acquisition.
type Options struct {
	CloneTimeout time.Duration
	Depth        int
	// WorkDir is the parent directory for checkouts; "" uses the OS temp dir.
	WorkDir string
	// MaxFileBytes caps ReadFile output; 0 = unlimited.
	MaxFileBytes int
	Logger       *zap.Logger
}

// Snapshot is an ephemeral read-only checkout of one repository branch.
// It owns its local storage and must be released with Close on every path.
type Snapshot struct {
	ref          Ref
	dir          string
	maxFileBytes int
	logger       *zap.Logger

	closeOnce sync.Once
}

// Open acquires a shallow, single-branch checkout of ref within the clone
// time budget. An empty ref.Branch checks out the remote's default branch.
// The caller owns the returned snapshot and must Close it.
func Open(ctx context.Context, ref Ref, opts Options) (*Snapshot, error) {
	if strings.TrimSpace(ref.URL) == "" {
		return nil, &AccessError{Ref: ref, Err: errors.New("repository url is required")}
	}

	timeout := opts.CloneTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	depth := opts.Depth
	if depth <= 0 {
		depth = 1
	}

	dir, err := os.MkdirTemp(opts.WorkDir, "scribepatch-checkout-*")
	if err != nil {
		return nil, &AccessError{Ref: ref, Err: fmt.Errorf("create checkout dir: %w", err)}
	}

	cloneCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"clone",
		"--depth", fmt.Sprintf("%d", depth),
		"--single-branch",
	}
	// An empty branch clones the remote's default branch.
	if strings.TrimSpace(ref.Branch) != "" {
		args = append(args, "--branch", ref.Branch)
	}
	args = append(args, ref.URL, dir)
	cmd := exec.CommandContext(cloneCtx, "git", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.RemoveAll(dir)
		if cloneCtx.Err() != nil {
			return nil, &AccessError{Ref: ref, Err: fmt.Errorf("clone timed out after %s", timeout)}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, &AccessError{Ref: ref, Err: fmt.Errorf("git clone: %s", msg)}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Snapshot{
		ref:          ref,
		dir:          dir,
		maxFileBytes: opts.MaxFileBytes,
		logger:       logger,
	}, nil
}

// OpenDir wraps an existing local directory as a snapshot. The snapshot
// takes ownership of the directory: Close removes it.
func OpenDir(dir string, opts Options) (*Snapshot, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &AccessError{Err: fmt.Errorf("stat %s: %w", dir, err)}
	}
	if !info.IsDir() {
		return nil, &AccessError{Err: fmt.Errorf("%s is not a directory", dir)}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Snapshot{
		dir:          dir,
		maxFileBytes: opts.MaxFileBytes,
		logger:       logger,
	}, nil
}

// Ref returns the repository reference this snapshot was opened for.
func (s *Snapshot) Ref() Ref {
	return s.ref
}

// ListFiles returns the recursive set of file paths relative to the
// checkout root, excluding dotfiles and dot-directories (including .git).
// The result is sorted so a given checkout always lists identically.
func (s *Snapshot) ListFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == s.dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile returns the content of a root-relative path as text.
func (s *Snapshot) ReadFile(path string) (string, error) {
	resolved, err := s.resolve(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory: %w", path, ErrNotFound)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if s.maxFileBytes > 0 && len(data) > s.maxFileBytes {
		return string(data[:s.maxFileBytes]) + "\n[truncated]", nil
	}
	return string(data), nil
}

// Close releases the checkout's local storage. It is idempotent, and
// cleanup errors are logged rather than propagated so they never mask the
// primary result.
func (s *Snapshot) Close() error {
	s.closeOnce.Do(func() {
		if err := os.RemoveAll(s.dir); err != nil {
			s.logger.Warn("failed to remove snapshot checkout",
				zap.String("dir", s.dir),
				zap.Error(err))
		}
	})
	return nil
}

// resolve validates a root-relative path and returns its absolute location
// inside the checkout. Absolute paths and traversal out of the checkout are
// rejected.
func (s *Snapshot) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required: %w", ErrNotFound)
	}
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute path %s not allowed: %w", path, ErrNotFound)
	}
	abs := filepath.Clean(filepath.Join(s.dir, clean))
	if abs != s.dir && !strings.HasPrefix(abs, s.dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %s escapes checkout: %w", path, ErrNotFound)
	}
	return abs, nil
}
