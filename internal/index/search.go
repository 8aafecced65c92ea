package index

import (
	"database/sql"
	"strings"
)

const defaultSearchLimit = 20

// terms splits a user query into words. Every word must match.
func terms(query string) []string {
	return strings.Fields(query)
}

// likePattern escapes LIKE wildcards in term and wraps it in %.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// matchExpr quotes each term as an FTS5 string so punctuation in user input
// is never parsed as query syntax.
func matchExpr(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Label, &r.Path, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
