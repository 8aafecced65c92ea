//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS cards_fts USING fts5(
			id UNINDEXED,
			label,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, id, label, body string, tags []string) error {
	_, _ = tx.Exec(`DELETE FROM cards_fts WHERE id = ?`, id)
	_, err := tx.Exec(`INSERT INTO cards_fts (id, label, body, tags) VALUES (?, ?, ?, ?)`,
		id, label, body, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id string) {
	_, _ = tx.Exec(`DELETE FROM cards_fts WHERE id = ?`, id)
}

func ftsClear(tx *sql.Tx) {
	_, _ = tx.Exec(`DELETE FROM cards_fts`)
}

// Search ranks cards matching every word of query and returns a highlighted
// body snippet for each.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	words := terms(query)
	if len(words) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	rows, err := db.conn.Query(`
		SELECT f.id, f.label, c.path,
		       snippet(cards_fts, 2, '<b>', '</b>', '...', 64)
		FROM cards_fts f
		JOIN cards c ON c.id = f.id
		WHERE cards_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, matchExpr(words), limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows)
}
