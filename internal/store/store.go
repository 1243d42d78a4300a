// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists papers in a SQLite database. The canonical
// reference URL is the identity key: adding a candidate whose URL is
// already stored is a no-op.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paper-collector/pkg/types"
)

// ErrNotFound is returned when no paper matches the lookup.
var ErrNotFound = errors.New("paper not found")

// ErrFilePathSet is returned by UpdateFilePath when the paper already
// references a different local file.
var ErrFilePathSet = errors.New("paper already has a file path")

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const paperColumns = `id, title, authors, abstract, url, pdf_url, doi, published_date,
	keywords, source, file_path, skip_reason, created_at, updated_at`

// Store manages the paper database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the paper database at path and creates the schema
// if it does not exist.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			authors TEXT NOT NULL DEFAULT '[]',
			abstract TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL UNIQUE,
			pdf_url TEXT NOT NULL DEFAULT '',
			doi TEXT NOT NULL DEFAULT '',
			published_date TEXT NOT NULL DEFAULT '',
			keywords TEXT NOT NULL DEFAULT '[]',
			source TEXT NOT NULL,
			file_path TEXT NOT NULL DEFAULT '',
			skip_reason TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_created_at ON papers(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_source ON papers(source)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Add inserts every candidate whose URL is not yet stored and returns the
// newly inserted papers in input order. Candidates with an empty URL are
// ignored. Adding the same candidate twice leaves the store unchanged.
func (s *Store) Add(ctx context.Context, candidates []types.Candidate) ([]types.Paper, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO papers
		(title, authors, abstract, url, pdf_url, doi, published_date, keywords, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	var added []types.Paper
	for _, c := range candidates {
		if c.URL == "" {
			continue
		}
		authors, err := marshalList(c.Authors)
		if err != nil {
			return nil, fmt.Errorf("encoding authors for %s: %w", c.URL, err)
		}
		keywords, err := marshalList(c.Keywords)
		if err != nil {
			return nil, fmt.Errorf("encoding keywords for %s: %w", c.URL, err)
		}
		now := s.now().UTC()
		ts := formatTime(now)

		res, err := stmt.ExecContext(ctx,
			c.Title, authors, c.Abstract, c.URL, c.DocumentURL, c.DOI,
			c.PublishedDate, keywords, string(c.Source), ts, ts,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting %s: %w", c.URL, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("inserting %s: %w", c.URL, err)
		}
		if n == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading id for %s: %w", c.URL, err)
		}

		p := types.Paper{ID: id, Candidate: c, CreatedAt: now, UpdatedAt: now}
		if p.Authors == nil {
			p.Authors = []string{}
		}
		if p.Keywords == nil {
			p.Keywords = []string{}
		}
		added = append(added, p)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}
	return added, nil
}

// KnownURLs returns the set of every stored canonical URL.
func (s *Store) KnownURLs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url FROM papers`)
	if err != nil {
		return nil, fmt.Errorf("querying urls: %w", err)
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scanning url: %w", err)
		}
		known[u] = true
	}
	return known, rows.Err()
}

// List returns papers newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]types.Paper, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.query(ctx, `SELECT `+paperColumns+` FROM papers
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
}

// Get returns the paper with the given id.
func (s *Store) Get(ctx context.Context, id int64) (types.Paper, error) {
	return s.queryOne(ctx, `SELECT `+paperColumns+` FROM papers WHERE id = ?`, id)
}

// GetByURL returns the paper with the given canonical URL.
func (s *Store) GetByURL(ctx context.Context, url string) (types.Paper, error) {
	return s.queryOne(ctx, `SELECT `+paperColumns+` FROM papers WHERE url = ?`, url)
}

// Pending returns papers without a local file, oldest first. Papers
// skipped by a size or page policy are included only when includeSkipped
// is true.
func (s *Store) Pending(ctx context.Context, includeSkipped bool, limit int) ([]types.Paper, error) {
	if limit <= 0 {
		limit = -1
	}
	q := `SELECT ` + paperColumns + ` FROM papers WHERE file_path = ''`
	if !includeSkipped {
		q += ` AND skip_reason = ''`
	}
	q += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	return s.query(ctx, q, limit)
}

// UpdateFilePath records the local file of a paper. It succeeds when no
// path is set yet or when the same path is recorded again; a different
// existing path yields ErrFilePathSet. A successful update clears any
// skip reason.
func (s *Store) UpdateFilePath(ctx context.Context, id int64, path string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE papers SET file_path = ?, skip_reason = '', updated_at = ?
		WHERE id = ? AND file_path = ''`,
		path, formatTime(s.now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("updating file path: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.FilePath == path {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrFilePathSet, p.FilePath)
}

// MarkSkipped records why a paper's document was not kept.
func (s *Store) MarkSkipped(ctx context.Context, id int64, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE papers SET skip_reason = ?, updated_at = ? WHERE id = ?`,
		reason, formatTime(s.now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("marking skipped: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a paper and its local file. A missing file is not an
// error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM papers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting paper %d: %w", id, err)
	}
	if p.FilePath != "" {
		if err := os.Remove(p.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", p.FilePath, err)
		}
	}
	return nil
}

// Search returns papers whose title, abstract, or authors contain q,
// case-insensitively, newest first.
func (s *Store) Search(ctx context.Context, q string, limit int) ([]types.Paper, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(q) + "%"
	return s.query(ctx, `SELECT `+paperColumns+` FROM papers
		WHERE title LIKE ? ESCAPE '\' OR abstract LIKE ? ESCAPE '\' OR authors LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		pattern, pattern, pattern, limit)
}

// All returns every paper, oldest first.
func (s *Store) All(ctx context.Context) ([]types.Paper, error) {
	return s.query(ctx, `SELECT `+paperColumns+` FROM papers ORDER BY created_at ASC, id ASC`)
}

func (s *Store) queryOne(ctx context.Context, q string, args ...any) (types.Paper, error) {
	p, err := scanPaper(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Paper{}, ErrNotFound
	}
	if err != nil {
		return types.Paper{}, fmt.Errorf("querying paper: %w", err)
	}
	return p, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]types.Paper, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	var papers []types.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPaper(row scanner) (types.Paper, error) {
	var (
		p                         types.Paper
		authors, keywords, source string
		createdAt, updatedAt      string
	)
	err := row.Scan(&p.ID, &p.Title, &authors, &p.Abstract, &p.URL, &p.DocumentURL,
		&p.DOI, &p.PublishedDate, &keywords, &source, &p.FilePath, &p.SkipReason,
		&createdAt, &updatedAt)
	if err != nil {
		return types.Paper{}, err
	}
	p.Source = types.Source(source)
	p.Authors = unmarshalList(authors)
	p.Keywords = unmarshalList(keywords)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

func marshalList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalList(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return []string{}
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
