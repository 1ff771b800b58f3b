package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a title lookup matches no record.
var ErrNotFound = errors.New("memory not found")

// ErrBlankTitle is returned when a save is attempted with an empty title.
var ErrBlankTitle = errors.New("titulo cannot be blank")

const timestampLayout = "2006-01-02 15:04:05"

// Record is one persisted memory.
type Record struct {
	ID        int64
	Titulo    string
	Descricao string
	Timestamp time.Time
}

// Store is the durable key-fact store backing the remember/recall
// capabilities: a memories table plus an FTS5 index kept synchronized by
// triggers, so every insert, update, and delete mirrors into the index within
// the same transaction boundary.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates/opens the memory database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single in-flight turn per process. One shared connection avoids writer
	// lock contention with SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, now: time.Now}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			titulo TEXT NOT NULL,
			descricao TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS memories_titulo_lower_idx ON memories(LOWER(titulo));`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			titulo, descricao,
			content='memories',
			content_rowid='id',
			tokenize='unicode61 remove_diacritics 2'
		);`,
		`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, titulo, descricao)
			VALUES (new.id, new.titulo, new.descricao);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, titulo, descricao)
			VALUES ('delete', old.id, old.titulo, old.descricao);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, titulo, descricao)
			VALUES ('delete', old.id, old.titulo, old.descricao);
			INSERT INTO memories_fts(rowid, titulo, descricao)
			VALUES (new.id, new.titulo, new.descricao);
		END;`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init memory schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(stmt string) string {
	line := strings.TrimSpace(stmt)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

// NormalizeTitle lowercases, trims, and collapses internal whitespace so
// title lookups are insensitive to case and spacing.
func NormalizeTitle(titulo string) string {
	return strings.Join(strings.Fields(strings.ToLower(titulo)), " ")
}

// Save inserts a new record and returns it with the assigned id. Blank
// post-trim titles are rejected with ErrBlankTitle.
func (s *Store) Save(ctx context.Context, titulo, descricao string) (Record, error) {
	titulo = strings.TrimSpace(titulo)
	if titulo == "" {
		return Record{}, ErrBlankTitle
	}
	descricao = strings.TrimSpace(descricao)

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (titulo, descricao, timestamp) VALUES (?, ?, ?)`,
		titulo, descricao, now.Format(timestampLayout))
	if err != nil {
		return Record{}, fmt.Errorf("insert memory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("read inserted memory id: %w", err)
	}
	return Record{ID: id, Titulo: titulo, Descricao: descricao, Timestamp: now}, nil
}

// Search runs a ranked full-text query over titulo+descricao, best match
// first. A blank term behaves as Recent(5).
func (s *Store) Search(ctx context.Context, term string, limit int) ([]Record, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return s.Recent(ctx, 5)
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT m.id, m.titulo, m.descricao, m.timestamp
FROM memories_fts f
JOIN memories m ON m.id = f.rowid
WHERE memories_fts MATCH ?
ORDER BY rank
LIMIT ?`, ftsQuery(term), limit)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Recent returns the limit most recently inserted records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, titulo, descricao, timestamp
FROM memories
ORDER BY timestamp DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent memories: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// DeleteByTitle removes the record whose normalized title matches the
// normalized input. Titles are unique only by convention; when equivalent
// titles coexist the oldest record (lowest id) wins, deterministically.
func (s *Store) DeleteByTitle(ctx context.Context, titulo string) (Record, error) {
	normalized := NormalizeTitle(titulo)
	if normalized == "" {
		return Record{}, ErrNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin delete memory: %w", err)
	}
	defer tx.Rollback()

	// The normalized key collapses internal whitespace, which SQL LOWER/TRIM
	// cannot express, so the match is resolved here.
	rows, err := tx.QueryContext(ctx, `
SELECT id, titulo, descricao, timestamp
FROM memories
ORDER BY id ASC`)
	if err != nil {
		return Record{}, fmt.Errorf("find memory by title: %w", err)
	}
	candidates, err := scanRecords(rows)
	rows.Close()
	if err != nil {
		return Record{}, fmt.Errorf("find memory by title: %w", err)
	}

	var rec Record
	found := false
	for _, c := range candidates {
		if NormalizeTitle(c.Titulo) == normalized {
			rec = c
			found = true
			break
		}
	}
	if !found {
		return Record{}, ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, rec.ID); err != nil {
		return Record{}, fmt.Errorf("delete memory: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit delete memory: %w", err)
	}
	return rec, nil
}

// Count reports the number of stored records. Used by tests and diagnostics.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

// IndexMatches reports how many FTS index entries match term, bypassing the
// join with the primary table. Lets tests verify the index holds no residue
// after a delete.
func (s *Store) IndexMatches(ctx context.Context, term string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories_fts WHERE memories_fts MATCH ?`, ftsQuery(term)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count fts matches: %w", err)
	}
	return n, nil
}

// ftsQuery quotes each term so user input with FTS metacharacters (quotes,
// dashes, operators) stays a plain keyword query.
func ftsQuery(term string) string {
	fields := strings.Fields(term)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var ts string
	if err := row.Scan(&rec.ID, &rec.Titulo, &rec.Descricao, &ts); err != nil {
		return Record{}, err
	}
	parsed, err := time.ParseInLocation(timestampLayout, ts, time.Local)
	if err == nil {
		rec.Timestamp = parsed
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return out, nil
}
