//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

// Without FTS5 the search runs LIKE over the cards table.
func initFTS(_ *sql.DB) error { return nil }

func ftsUpsert(_ *sql.Tx, _, _, _ string, _ []string) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

func ftsClear(_ *sql.Tx) {}

// Search returns cards whose label, body or tags contain every word of
// query, ordered by label.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	words := terms(query)
	if len(words) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	clauses := make([]string, len(words))
	args := make([]any, 0, 3*len(words)+1)
	for i, w := range words {
		clauses[i] = `(label LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\')`
		p := likePattern(w)
		args = append(args, p, p, p)
	}
	args = append(args, limit)

	rows, err := db.conn.Query(`
		SELECT id, label, path, substr(body, 1, 200)
		FROM cards
		WHERE `+strings.Join(clauses, " AND ")+`
		ORDER BY label
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows)
}
