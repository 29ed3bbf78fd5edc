package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/webring/internal/models"
)

const versionKey = "registry_version"

const memberColumns = `m.id, m.name, m.website, m.program, m.year, m.profile_pic, m.instagram, m.twitter, m.linkedin`

// ReplaceAll swaps the indexed members for members and records the registry
// version they were read from, within a single transaction.
func (db *DB) ReplaceAll(ctx context.Context, version string, members []models.Member) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, stmt := range []string{`DELETE FROM connections`, `DELETE FROM members`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("index: clear: %w", err)
		}
	}
	if err := ftsClear(ctx, tx); err != nil {
		return err
	}

	memberStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO members (id, position, name, website, program, year, profile_pic, instagram, twitter, linkedin)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare member insert: %w", err)
	}
	defer memberStmt.Close()

	connStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO connections (source, target) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare connection insert: %w", err)
	}
	defer connStmt.Close()

	for i, m := range members {
		if _, err := memberStmt.ExecContext(ctx, m.ID, i, m.Name, m.Website, m.Program, m.Year,
			m.ProfilePic, m.Instagram, m.Twitter, m.LinkedIn); err != nil {
			return fmt.Errorf("index: insert member %s: %w", m.ID, err)
		}
		for _, target := range m.Connections {
			if _, err := connStmt.ExecContext(ctx, m.ID, target); err != nil {
				return fmt.Errorf("index: insert connection: %w", err)
			}
		}
		if err := ftsInsert(ctx, tx, m); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, versionKey, version); err != nil {
		return fmt.Errorf("index: store version: %w", err)
	}

	return tx.Commit()
}

// Version returns the registry version last indexed, or empty string if the
// index was never populated.
func (db *DB) Version(ctx context.Context) (string, error) {
	var v string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, versionKey).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: version: %w", err)
	}
	return v, nil
}

// Count returns the number of indexed members.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM members`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// scanMembers reads member rows selected with memberColumns and attaches
// their connections.
func (db *DB) scanMembers(ctx context.Context, rows *sql.Rows) ([]models.Member, error) {
	defer rows.Close()

	var out []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Website, &m.Program, &m.Year,
			&m.ProfilePic, &m.Instagram, &m.Twitter, &m.LinkedIn); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range out {
		conns, err := db.connections(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Connections = conns
	}
	return out, nil
}

func (db *DB) connections(ctx context.Context, source string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT target FROM connections WHERE source = ? ORDER BY rowid`, source)
	if err != nil {
		return nil, fmt.Errorf("index: connections: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
