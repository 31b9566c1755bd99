// Package history persists and queries transcription history. Storage is a
// local SQLite database; full-text search uses an FTS5 trigram index for
// queries of three or more characters and falls back to a substring scan for
// shorter ones, where a trigram index cannot match.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/echo-stt/echo/internal/types"
)

// ErrNotFound is returned when an entry id does not exist.
var ErrNotFound = errors.New("history entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	duration_seconds REAL,
	language TEXT,
	model_name TEXT
);

CREATE INDEX IF NOT EXISTS idx_history_created_at ON history(created_at DESC);

CREATE VIRTUAL TABLE IF NOT EXISTS history_fts USING fts5(
	text,
	content='history',
	content_rowid='id',
	tokenize='trigram'
);

CREATE TRIGGER IF NOT EXISTS history_ai AFTER INSERT ON history BEGIN
	INSERT INTO history_fts(rowid, text) VALUES (new.id, new.text);
END;

CREATE TRIGGER IF NOT EXISTS history_ad AFTER DELETE ON history BEGIN
	INSERT INTO history_fts(history_fts, rowid, text) VALUES ('delete', old.id, old.text);
END;

CREATE TRIGGER IF NOT EXISTS history_au AFTER UPDATE ON history BEGIN
	INSERT INTO history_fts(history_fts, rowid, text) VALUES ('delete', old.id, old.text);
	INSERT INTO history_fts(rowid, text) VALUES (new.id, new.text);
END;
`

// Store is the persistence surface the history service works against.
type Store interface {
	Insert(ctx context.Context, e types.HistoryEntry) (int64, error)
	Page(ctx context.Context, limit, offset int) (types.Page, error)
	Search(ctx context.Context, query string, limit, offset int) (types.Page, error)
	Delete(ctx context.Context, id int64) error
	Clear(ctx context.Context) error
	Recent(ctx context.Context, minutes int) ([]types.HistoryEntry, error)
}

// SQLStore is the SQLite-backed Store.
type SQLStore struct {
	db *sql.DB
}

// Open opens or creates the history database at path and applies the schema.
func Open(path string) (*SQLStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The driver serializes access anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Insert stores a new entry and returns its id. CreatedAt defaults to now
// when empty.
func (s *SQLStore) Insert(ctx context.Context, e types.HistoryEntry) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if e.CreatedAt == "" {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO history (text, duration_seconds, language, model_name) VALUES (?, ?, ?, ?)`,
			e.Text, e.DurationSeconds, nullable(e.Language), nullable(e.ModelName))
	} else {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO history (text, created_at, duration_seconds, language, model_name) VALUES (?, ?, ?, ?, ?)`,
			e.Text, e.CreatedAt, e.DurationSeconds, nullable(e.Language), nullable(e.ModelName))
	}
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Page returns one page of history, newest first.
func (s *SQLStore) Page(ctx context.Context, limit, offset int) (types.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, created_at, duration_seconds, language, model_name
		 FROM history ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return types.Page{}, fmt.Errorf("query page: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return types.Page{}, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&total); err != nil {
		return types.Page{}, fmt.Errorf("count entries: %w", err)
	}
	return makePage(entries, total, offset), nil
}

// Search returns one page of entries matching query, newest first. The query
// is normalized (NFC, case folded) before matching.
func (s *SQLStore) Search(ctx context.Context, query string, limit, offset int) (types.Page, error) {
	q := normalizeQuery(query)
	if q == "" {
		return s.Page(ctx, limit, offset)
	}
	if len([]rune(q)) >= 3 {
		return s.searchFTS(ctx, q, limit, offset)
	}
	return s.searchLike(ctx, q, limit, offset)
}

func (s *SQLStore) searchFTS(ctx context.Context, q string, limit, offset int) (types.Page, error) {
	// Quote the query so FTS operators in user input are matched literally.
	match := `"` + strings.ReplaceAll(q, `"`, `""`) + `"`

	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id, h.text, h.created_at, h.duration_seconds, h.language, h.model_name
		 FROM history h JOIN history_fts f ON f.rowid = h.id
		 WHERE history_fts MATCH ?
		 ORDER BY h.created_at DESC, h.id DESC LIMIT ? OFFSET ?`,
		match, limit, offset)
	if err != nil {
		return types.Page{}, fmt.Errorf("fts search: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return types.Page{}, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history_fts WHERE history_fts MATCH ?`, match).Scan(&total); err != nil {
		return types.Page{}, fmt.Errorf("fts count: %w", err)
	}
	return makePage(entries, total, offset), nil
}

func (s *SQLStore) searchLike(ctx context.Context, q string, limit, offset int) (types.Page, error) {
	pattern := "%" + escapeLike(q) + "%"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, created_at, duration_seconds, language, model_name
		 FROM history WHERE lower(text) LIKE ? ESCAPE '\'
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		pattern, limit, offset)
	if err != nil {
		return types.Page{}, fmt.Errorf("like search: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return types.Page{}, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history WHERE lower(text) LIKE ? ESCAPE '\'`, pattern).Scan(&total); err != nil {
		return types.Page{}, fmt.Errorf("like count: %w", err)
	}
	return makePage(entries, total, offset), nil
}

// Delete removes one entry. Deleting an id that does not exist returns
// ErrNotFound.
func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear removes all history.
func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Recent returns the entries created within the last given minutes, oldest
// first so they read chronologically.
func (s *SQLStore) Recent(ctx context.Context, minutes int) ([]types.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, created_at, duration_seconds, language, model_name
		 FROM history
		 WHERE created_at >= strftime('%Y-%m-%dT%H:%M:%fZ', 'now', ?)
		 ORDER BY created_at ASC, id ASC`,
		fmt.Sprintf("-%d minutes", minutes))
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]types.HistoryEntry, error) {
	defer rows.Close()

	var entries []types.HistoryEntry
	for rows.Next() {
		var (
			e        types.HistoryEntry
			duration sql.NullFloat64
			language sql.NullString
			model    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Text, &e.CreatedAt, &duration, &language, &model); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if duration.Valid {
			d := duration.Float64
			e.DurationSeconds = &d
		}
		e.Language = language.String
		e.ModelName = model.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func makePage(entries []types.HistoryEntry, total, offset int) types.Page {
	return types.Page{
		Entries:    entries,
		TotalCount: total,
		HasMore:    offset+len(entries) < total,
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// normalizeQuery puts user input into NFC and folds case so "Straße" and
// "STRASSE" style variants match the same rows.
func normalizeQuery(q string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(q)))
}

func escapeLike(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q)
}
