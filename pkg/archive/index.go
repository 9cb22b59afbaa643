package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const routesSchema = `
CREATE TABLE IF NOT EXISTS routes (
	id               TEXT PRIMARY KEY,
	routed_at        TEXT NOT NULL,
	action           TEXT NOT NULL,
	confidence_level TEXT NOT NULL,
	original_score   REAL NOT NULL,
	content_hash     TEXT NOT NULL,
	object_ref       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_routes_routed_at ON routes(routed_at);
CREATE INDEX IF NOT EXISTS idx_routes_action ON routes(action);
`

// Index is a SQLite-backed history of routing decisions. It is an optional
// companion to the file archive; the files stay authoritative.
type Index struct {
	db *sql.DB
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// modernc.org/sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY churn under concurrent inserts.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(routesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Close releases the database handle.
func (ix *Index) Close() error {
	if ix == nil || ix.db == nil {
		return nil
	}
	return ix.db.Close()
}

// Insert records a decision, replacing any previous row with the same id.
func (ix *Index) Insert(d *Decision) error {
	_, err := ix.db.Exec(
		`INSERT OR REPLACE INTO routes
			(id, routed_at, action, confidence_level, original_score, content_hash, object_ref)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		d.RoutedAt.UTC().Format(time.RFC3339Nano),
		d.Action,
		d.ConfidenceLevel,
		d.OriginalScore,
		d.ContentHash,
		d.ObjectRef.SHA256,
	)
	if err != nil {
		return fmt.Errorf("insert route: %w", err)
	}
	return nil
}

// HistoryFilter narrows a history query. Zero values match everything; a
// non-positive limit defaults to 20.
type HistoryFilter struct {
	Action string
	Level  string
	Limit  int
}

// Route is one row of routing history.
type Route struct {
	ID              string
	RoutedAt        time.Time
	Action          string
	ConfidenceLevel string
	OriginalScore   float64
	ContentHash     string
	ObjectRef       string
}

// History returns recent decisions, newest first.
func (ix *Index) History(filter HistoryFilter) ([]Route, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	var conditions []string
	var args []any
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.Level != "" {
		conditions = append(conditions, "confidence_level = ?")
		args = append(args, filter.Level)
	}

	query := `SELECT id, routed_at, action, confidence_level, original_score, content_hash, object_ref FROM routes`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY routed_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := ix.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()

	var routes []Route
	for rows.Next() {
		var r Route
		var routedAt string
		if err := rows.Scan(&r.ID, &routedAt, &r.Action, &r.ConfidenceLevel, &r.OriginalScore, &r.ContentHash, &r.ObjectRef); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, routedAt)
		if err != nil {
			return nil, fmt.Errorf("parse routed_at %q: %w", routedAt, err)
		}
		r.RoutedAt = t
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// Count returns the number of indexed decisions.
func (ix *Index) Count() (int, error) {
	var n int
	if err := ix.db.QueryRow(`SELECT COUNT(*) FROM routes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count routes: %w", err)
	}
	return n, nil
}
