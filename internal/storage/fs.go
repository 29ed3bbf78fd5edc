package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/semaphore"

	"github.com/starford/webring/internal/checksum"
)

const (
	tmpPattern    = ".webring-tmp-*"
	lockSuffix    = ".lock"
	lockRetryStep = 20 * time.Millisecond
)

// FS implements Provider backed by the local file system.
type FS struct {
	root    string // absolute path to the data directory
	lockDir string // absolute; empty keeps lock files next to their document

	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

// FSOption configures an FS.
type FSOption func(*FS)

// WithLockDir keeps advisory lock files in dir instead of beside the files
// they guard, so a document inside a source tree gets no stray sibling.
// The directory is created on first lock.
func WithLockDir(dir string) FSOption {
	return func(f *FS) { f.lockDir = dir }
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...FSOption) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	f := &FS{root: abs, sems: make(map[string]*semaphore.Weighted)}
	for _, opt := range opts {
		opt(f)
	}
	if f.lockDir != "" {
		if f.lockDir, err = filepath.Abs(f.lockDir); err != nil {
			return nil, fmt.Errorf("storage: resolve lock dir: %w", err)
		}
	}
	return f, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes root: %s", rel)
	}
	return abs, nil
}

// List returns metadata for every regular file directly under dir,
// skipping temp and lock files.
func (f *FS) List(dir string) ([]FileInfo, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []FileInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, lockSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		data, err := os.ReadFile(filepath.Join(base, name))
		if err != nil {
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		rel, _ := filepath.Rel(f.root, filepath.Join(base, name))
		out = append(out, FileInfo{
			Path:      filepath.ToSlash(rel),
			Size:      info.Size(),
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
	}
	return out, nil
}

// Read returns the raw bytes of a file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes a file.
func (f *FS) Delete(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// Lock serializes writers of path. Goroutines in this process queue on a
// per-path semaphore; other processes are excluded by an advisory lock on
// a sibling "<path>.lock" file, or on a file in the lock directory.
func (f *FS) Lock(ctx context.Context, path string) (func(), error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	sem := f.semaphore(abs)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("storage: lock %s: %w", path, err)
	}

	lockPath := f.lockPath(abs)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		sem.Release(1)
		return nil, fmt.Errorf("storage: mkdir: %w", err)
	}
	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(ctx, lockRetryStep)
	if err == nil && !locked {
		if err = ctx.Err(); err == nil {
			err = errors.New("advisory lock not acquired")
		}
	}
	if err != nil {
		sem.Release(1)
		return nil, fmt.Errorf("storage: lock %s: %w", path, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = fl.Unlock()
			sem.Release(1)
		})
	}, nil
}

// lockPath names the advisory lock file for abs. In the lock directory the
// name carries a hash of abs so same-named documents do not share a lock.
func (f *FS) lockPath(abs string) string {
	if f.lockDir == "" {
		return abs + lockSuffix
	}
	return filepath.Join(f.lockDir, filepath.Base(abs)+"-"+checksum.Sum([]byte(abs))[:12]+lockSuffix)
}

func (f *FS) semaphore(abs string) *semaphore.Weighted {
	f.mu.Lock()
	defer f.mu.Unlock()
	sem, ok := f.sems[abs]
	if !ok {
		sem = semaphore.NewWeighted(1)
		f.sems[abs] = sem
	}
	return sem
}
