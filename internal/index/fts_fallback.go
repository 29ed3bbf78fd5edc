//go:build !sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/webring/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses a LIKE fallback on the members table.
	return nil
}

func ftsClear(_ context.Context, _ *sql.Tx) error { return nil }

func ftsInsert(_ context.Context, _ *sql.Tx, _ models.Member) error { return nil }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search performs a LIKE-based search over id, name, website and program
// (fallback when FTS5 is not compiled in). Results are in registry order.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]models.Member, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + likeEscaper.Replace(strings.TrimSpace(query)) + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM members m
		WHERE m.id LIKE ?1 ESCAPE '\'
		   OR m.name LIKE ?1 ESCAPE '\'
		   OR m.website LIKE ?1 ESCAPE '\'
		   OR m.program LIKE ?1 ESCAPE '\'
		ORDER BY m.position
		LIMIT ?2
	`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return db.scanMembers(ctx, rows)
}
