package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CardRow represents a row in the cards table.
type CardRow struct {
	ID       string
	Label    string
	Path     string
	Checksum string
	Tags     []string
	Modified time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Path    string `json:"path"`
	Snippet string `json:"snippet"`
}

// TagCount is a tag and the number of cards carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// UpsertCard inserts or replaces a card, its FTS entry, tags and links
// within a transaction.
func (db *DB) UpsertCard(c CardRow, body string, links []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tagsJSON, _ := json.Marshal(c.Tags)
	_, err = tx.Exec(`
		INSERT INTO cards (id, label, path, checksum, tags, body, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label    = excluded.label,
			path     = excluded.path,
			checksum = excluded.checksum,
			tags     = excluded.tags,
			body     = excluded.body,
			modified = excluded.modified
	`, c.ID, c.Label, c.Path, c.Checksum, string(tagsJSON), body, c.Modified)
	if err != nil {
		return fmt.Errorf("index: upsert card: %w", err)
	}

	if err := ftsUpsert(tx, c.ID, c.Label, body, c.Tags); err != nil {
		return err
	}

	if err := replace(tx, "tags", "card", "tag", c.ID, c.Tags); err != nil {
		return err
	}
	if err := replace(tx, "links", "source", "target", c.ID, links); err != nil {
		return err
	}
	return tx.Commit()
}

// replace swaps the rows keyed by owner in a two-column table.
func replace(tx *sql.Tx, table, ownerCol, valueCol, owner string, values []string) error {
	if _, err := tx.Exec(`DELETE FROM `+table+` WHERE `+ownerCol+` = ?`, owner); err != nil {
		return fmt.Errorf("index: clear %s: %w", table, err)
	}
	for _, v := range values {
		_, err := tx.Exec(`INSERT OR IGNORE INTO `+table+` (`+ownerCol+`, `+valueCol+`) VALUES (?, ?)`, owner, v)
		if err != nil {
			return fmt.Errorf("index: insert %s: %w", table, err)
		}
	}
	return nil
}

// DeleteCard removes a card, its FTS entry, tags and outgoing links.
func (db *DB) DeleteCard(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, id)
	_, _ = tx.Exec(`DELETE FROM tags WHERE card = ?`, id)
	_, _ = tx.Exec(`DELETE FROM cards WHERE id = ?`, id)

	return tx.Commit()
}

// Clear empties the index. It is called when the store is locked or closed.
func (db *DB) Clear() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsClear(tx)
	for _, table := range []string{"links", "tags", "cards"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("index: clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a card, or empty string if not found.
func (db *DB) GetChecksum(id string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM cards WHERE id = ?`, id).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns every indexed card id with its checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM cards`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

// Backlinks returns the ids of cards linking to target, a card label.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT source FROM links WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// Tags lists every tag with its card count, most used first.
func (db *DB) Tags() ([]TagCount, error) {
	rows, err := db.conn.Query(`SELECT tag, count(*) AS n FROM tags GROUP BY tag ORDER BY n DESC, tag`)
	if err != nil {
		return nil, fmt.Errorf("index: tags: %w", err)
	}
	defer rows.Close()
	var out []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// CardsWithTag returns the ids of cards carrying tag.
func (db *DB) CardsWithTag(tag string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT card FROM tags WHERE tag = ? ORDER BY card`, tag)
	if err != nil {
		return nil, fmt.Errorf("index: cards with tag: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
