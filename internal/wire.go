package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/webring/internal/collection"
	"github.com/starford/webring/internal/index"
	"github.com/starford/webring/internal/ledger"
	"github.com/starford/webring/internal/moderation"
	"github.com/starford/webring/internal/photos"
	"github.com/starford/webring/internal/registry"
	"github.com/starford/webring/internal/storage"
)

// components are the stores and services every command is built from.
type components struct {
	registry *registry.Store
	queue    *ledger.Queue
	index    *index.DB
	photos   *photos.Store
	guard    *moderation.Guard

	registryPath string
	ledgerPath   string
}

// open builds the stores named by cfg. With seed set, a missing registry
// document is created empty.
func open(cfg *Config, logger *slog.Logger, seed bool) (*components, error) {
	lockTimeout := collection.WithLockTimeout(cfg.Lock.Timeout)
	codec := registry.NewCodec(cfg.Registry.BeginMarker, cfg.Registry.EndMarker)

	var fsOpts []storage.FSOption
	if cfg.Lock.Dir != "" {
		fsOpts = append(fsOpts, storage.WithLockDir(cfg.Lock.Dir))
	}

	regFiles, regName, regPath, err := openDocument(cfg.Registry.Path, fsOpts...)
	if err != nil {
		return nil, fmt.Errorf("init registry storage: %w", err)
	}
	if seed {
		if _, err := regFiles.Read(regName); errors.Is(err, fs.ErrNotExist) {
			if err := regFiles.Write(regName, codec.NewDocument()); err != nil {
				return nil, fmt.Errorf("create registry document: %w", err)
			}
			logger.Info("Registry document created", slog.String("path", regPath))
		}
	}

	ledgerFiles, ledgerName, ledgerPath, err := openDocument(cfg.Ledger.Path, fsOpts...)
	if err != nil {
		return nil, fmt.Errorf("init ledger storage: %w", err)
	}

	c := &components{
		registry:     registry.NewStore(regFiles, regName, codec, lockTimeout),
		queue:        ledger.NewQueue(ledgerFiles, ledgerName, lockTimeout),
		guard:        moderation.NewGuard(cfg.Admin.Secret),
		registryPath: regPath,
		ledgerPath:   ledgerPath,
	}

	if cfg.Index.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Index.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
		db, err := index.Open(cfg.Index.Path)
		if err != nil {
			return nil, fmt.Errorf("init index: %w", err)
		}
		c.index = db
	}

	if cfg.Photos.Path != "" {
		if err := os.MkdirAll(cfg.Photos.Path, 0o755); err != nil {
			c.close()
			return nil, fmt.Errorf("create photos dir: %w", err)
		}
		files, err := storage.NewFS(cfg.Photos.Path)
		if err != nil {
			c.close()
			return nil, fmt.Errorf("init photo storage: %w", err)
		}
		c.photos = photos.NewStore(files)
	}

	return c, nil
}

// service builds the moderation service over c.
func (c *components) service(opts ...moderation.Option) *moderation.Service {
	if c.index != nil {
		opts = append([]moderation.Option{moderation.WithIndex(c.index)}, opts...)
	}
	return moderation.NewService(c.queue, c.registry, opts...)
}

func (c *components) close() {
	if c.index != nil {
		_ = c.index.Close()
	}
}

// openDocument returns a file provider rooted at the directory holding path,
// the file name within it, and the absolute path.
func openDocument(path string, opts ...storage.FSOption) (*storage.FS, string, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", "", err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", "", err
	}
	files, err := storage.NewFS(dir, opts...)
	if err != nil {
		return nil, "", "", err
	}
	return files, filepath.Base(abs), abs, nil
}
