// Package library drives a Calibre library: the metadata.db records and the
// book directories next to it.
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ehcalibre/internal/metrics"
	"ehcalibre/pkg/database"
	"ehcalibre/pkg/models"
)

var ErrBookNotFound = errors.New("book not found")

const calibreTime = "2006-01-02 15:04:05.000000-07:00"

// Library is one Calibre library. It is a single logical connection: every
// exported method holds mu for its whole duration, so concurrent pipelines
// serialize here and never interleave writes to metadata.db or book folders.
type Library struct {
	Root string
	DB   *sql.DB

	mu sync.Mutex
}

// Open opens <root>/metadata.db, creating the tables this package needs when
// they are missing.
func Open(ctx context.Context, root string) (*Library, error) {
	db, err := database.Open(database.Config{
		Path:   filepath.Join(root, "metadata.db"),
		Driver: driverName,
		Create: true,
	})
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := database.Migrate(ctx, db, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate calibre db: %w", err)
	}
	return &Library{Root: root, DB: db}, nil
}

func (l *Library) Close() error {
	return l.DB.Close()
}

// Book is the stored view of a record, used by callers that need to read back.
type Book struct {
	ID          int64               `json:"id"`
	Title       string              `json:"title"`
	Sort        string              `json:"sort"`
	UUID        string              `json:"uuid"`
	Path        string              `json:"path"`
	HasCover    bool                `json:"has_cover"`
	Pubdate     string              `json:"pubdate"`
	Authors     []string            `json:"authors"`
	Publisher   string              `json:"publisher"`
	Tags        []string            `json:"tags"`
	Languages   []string            `json:"languages"`
	Rating      int                 `json:"rating"`
	Identifiers []models.Identifier `json:"identifiers"`
	Formats     []string            `json:"formats"`
}

// FindByIdentifier returns the book carrying label:value.
func (l *Library) FindByIdentifier(ctx context.Context, label, value string) (int64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return findByIdentifier(ctx, l.DB, label, value)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findByIdentifier(ctx context.Context, q querier, label, value string) (int64, bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT book FROM identifiers WHERE type = ? AND val = ? ORDER BY book LIMIT 1`,
		label, value).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find identifier %s:%s: %w", label, value, err)
	}
	return id, true, nil
}

// AddRecord registers entry and copies its files into the library. A book
// that already carries one of the entry's identifiers is updated in place
// and its id returned, so re-running a gallery never duplicates it.
func (l *Library) AddRecord(ctx context.Context, e models.CatalogEntry) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, err := l.addRecord(ctx, e)
	metrics.CatalogOps.WithLabelValues("add", metrics.Result(err)).Inc()
	return id, err
}

func (l *Library) addRecord(ctx context.Context, e models.CatalogEntry) (int64, error) {
	for _, ident := range e.Identifiers {
		id, ok, err := findByIdentifier(ctx, l.DB, ident.Label, ident.Value)
		if err != nil {
			return 0, err
		}
		if ok {
			if err := l.update(ctx, id, e); err != nil {
				return 0, err
			}
			return id, nil
		}
	}

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(calibreTime)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO books (title, timestamp, pubdate, series_index, author_sort, path, flags, has_cover, last_modified)
		VALUES (?, ?, ?, 1.0, ?, '', 1, 0, ?)
	`, e.Title, now, pubdate(e), strings.Join(e.Authors, " & "), now)
	if err != nil {
		return 0, fmt.Errorf("insert book: %w", err)
	}
	bookID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("book id: %w", err)
	}

	if err := writeLinks(ctx, tx, bookID, e); err != nil {
		return 0, err
	}

	rel := bookPath(e, bookID)
	if _, err := tx.ExecContext(ctx, `UPDATE books SET path = ? WHERE id = ?`, filepath.ToSlash(rel), bookID); err != nil {
		return 0, fmt.Errorf("set book path: %w", err)
	}

	dir := filepath.Join(l.Root, rel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create book dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(dir)
		}
	}()

	if err := copyFiles(ctx, tx, bookID, dir, e); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit book: %w", err)
	}
	committed = true
	return bookID, nil
}

// ReplaceRecord rewrites the metadata of an existing book. Files are untouched.
func (l *Library) ReplaceRecord(ctx context.Context, bookID int64, e models.CatalogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.replace(ctx, bookID, e)
	metrics.CatalogOps.WithLabelValues("replace", metrics.Result(err)).Inc()
	return err
}

func (l *Library) replace(ctx context.Context, bookID int64, e models.CatalogEntry) error {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := replaceTx(ctx, tx, bookID, e); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// update rewrites the metadata of an existing book and refreshes its files
// in one transaction, so a failed copy leaves the old record intact.
func (l *Library) update(ctx context.Context, bookID int64, e models.CatalogEntry) error {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := replaceTx(ctx, tx, bookID, e); err != nil {
		return err
	}

	if len(e.Files) > 0 || e.Cover != "" {
		var rel string
		if err := tx.QueryRowContext(ctx, `SELECT path FROM books WHERE id = ?`, bookID).Scan(&rel); err != nil {
			return fmt.Errorf("book path %d: %w", bookID, err)
		}
		dir := filepath.Join(l.Root, filepath.FromSlash(rel))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create book dir: %w", err)
		}
		if err := copyFiles(ctx, tx, bookID, dir, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

func replaceTx(ctx context.Context, tx *sql.Tx, bookID int64, e models.CatalogEntry) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE books SET title = ?, pubdate = ?, author_sort = ?, last_modified = ? WHERE id = ?
	`, e.Title, pubdate(e), strings.Join(e.Authors, " & "), time.Now().UTC().Format(calibreTime), bookID)
	if err != nil {
		return fmt.Errorf("update book %d: %w", bookID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrBookNotFound, bookID)
	}

	for _, table := range []string{"books_authors_link", "books_publishers_link", "books_tags_link", "books_languages_link", "books_ratings_link"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE book = ?`, bookID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return writeLinks(ctx, tx, bookID, e)
}

func pubdate(e models.CatalogEntry) string {
	if e.Pubdate != "" {
		return e.Pubdate
	}
	return "0101-01-01 00:00:00+00:00"
}

// Book reads a record back.
func (l *Library) Book(ctx context.Context, id int64) (*Book, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := &Book{ID: id}
	var uuid sql.NullString
	err := l.DB.QueryRowContext(ctx, `
		SELECT title, COALESCE(sort, ''), uuid, path, has_cover, COALESCE(pubdate, '') FROM books WHERE id = ?
	`, id).Scan(&b.Title, &b.Sort, &uuid, &b.Path, &b.HasCover, &b.Pubdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrBookNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}
	b.UUID = uuid.String

	if b.Authors, err = l.strings(ctx, `SELECT a.name FROM books_authors_link l JOIN authors a ON a.id = l.author WHERE l.book = ? ORDER BY l.id`, id); err != nil {
		return nil, err
	}
	pubs, err := l.strings(ctx, `SELECT p.name FROM books_publishers_link l JOIN publishers p ON p.id = l.publisher WHERE l.book = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(pubs) > 0 {
		b.Publisher = pubs[0]
	}
	if b.Tags, err = l.strings(ctx, `SELECT t.name FROM books_tags_link l JOIN tags t ON t.id = l.tag WHERE l.book = ? ORDER BY l.id`, id); err != nil {
		return nil, err
	}
	if b.Languages, err = l.strings(ctx, `SELECT g.lang_code FROM books_languages_link l JOIN languages g ON g.id = l.lang_code WHERE l.book = ? ORDER BY l.item_order`, id); err != nil {
		return nil, err
	}
	if b.Formats, err = l.strings(ctx, `SELECT format FROM data WHERE book = ? ORDER BY format`, id); err != nil {
		return nil, err
	}
	err = l.DB.QueryRowContext(ctx, `SELECT r.rating FROM books_ratings_link l JOIN ratings r ON r.id = l.rating WHERE l.book = ?`, id).Scan(&b.Rating)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get rating: %w", err)
	}

	rows, err := l.DB.QueryContext(ctx, `SELECT type, val FROM identifiers WHERE book = ? ORDER BY type`, id)
	if err != nil {
		return nil, fmt.Errorf("get identifiers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ident models.Identifier
		if err := rows.Scan(&ident.Label, &ident.Value); err != nil {
			return nil, fmt.Errorf("scan identifier: %w", err)
		}
		b.Identifiers = append(b.Identifiers, ident)
	}
	return b, rows.Err()
}

func (l *Library) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := l.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
