package index

import (
	"context"

	"github.com/starford/webring/internal/models"
)

// MemberIndex defines the interface for member index operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type MemberIndex interface {
	ReplaceAll(ctx context.Context, version string, members []models.Member) error
	Version(ctx context.Context) (string, error)
	Count(ctx context.Context) (int, error)
	Search(ctx context.Context, query string, limit int) ([]models.Member, error)
	Close() error
}

// Verify *DB satisfies MemberIndex at compile time.
var _ MemberIndex = (*DB)(nil)
