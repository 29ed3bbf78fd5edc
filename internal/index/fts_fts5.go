//go:build sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/webring/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS members_fts USING fts5(
			id UNINDEXED,
			name,
			website,
			program,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsClear(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM members_fts`); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	return nil
}

func ftsInsert(ctx context.Context, tx *sql.Tx, m models.Member) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO members_fts (id, name, website, program) VALUES (?, ?, ?, ?)`,
		m.ID, m.Name, m.Website, m.Program)
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

// matchQuery turns free text into an FTS5 prefix query: every term quoted,
// all terms required.
func matchQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"*`
	}
	return strings.Join(terms, " ")
}

// Search performs an FTS5 full-text search ordered by rank.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]models.Member, error) {
	if limit <= 0 {
		limit = 20
	}
	match := matchQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM members_fts f
		JOIN members m ON m.id = f.id
		WHERE members_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return db.scanMembers(ctx, rows)
}
