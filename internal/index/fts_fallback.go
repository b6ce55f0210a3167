//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE fallback on the notes.body column.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _ string, _ []string) error {
	// Body is already stored in the notes table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

func ftsMove(_ *sql.Tx, _, _ string) error { return nil }

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
// Every word of query must occur in the title, body or tags of a result.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	words := strings.Fields(query)
	if len(words) == 0 {
		return []SearchResult{}, nil
	}

	conds := make([]string, len(words))
	args := make([]any, 0, len(words)+1)
	for i, w := range words {
		conds[i] = fmt.Sprintf(`(title LIKE ?%[1]d ESCAPE '\' OR body LIKE ?%[1]d ESCAPE '\' OR tags LIKE ?%[1]d ESCAPE '\')`, i+1)
		args = append(args, "%"+likeEscape(w)+"%")
	}
	args = append(args, limit)

	rows, err := db.conn.Query(fmt.Sprintf(`
		SELECT path, title, substr(body, 1, 200)
		FROM notes
		WHERE %s
		ORDER BY updated_at DESC, path
		LIMIT ?%d
	`, strings.Join(conds, " AND "), len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
