package index

import (
	"context"
	"log/slog"

	"github.com/starford/webring/internal/registry"
)

// Source provides the registry snapshot the index is derived from.
type Source interface {
	List(ctx context.Context) (registry.Snapshot, error)
}

// Sync brings the index up to date with the registry document. It is a no-op
// when the indexed version already matches; it reports whether the index was
// rebuilt.
func Sync(ctx context.Context, db MemberIndex, src Source, logger *slog.Logger) (bool, error) {
	snap, err := src.List(ctx)
	if err != nil {
		return false, err
	}
	return SyncSnapshot(ctx, db, snap, logger)
}

// SyncSnapshot is Sync for a snapshot the caller already loaded.
func SyncSnapshot(ctx context.Context, db MemberIndex, snap registry.Snapshot, logger *slog.Logger) (bool, error) {
	current, err := db.Version(ctx)
	if err != nil {
		return false, err
	}
	if current == snap.Version {
		return false, nil
	}

	if err := db.ReplaceAll(ctx, snap.Version, snap.Records); err != nil {
		return false, err
	}
	logger.Debug("sync: indexed", slog.Int("members", len(snap.Records)), slog.String("version", snap.Version))
	return true, nil
}
