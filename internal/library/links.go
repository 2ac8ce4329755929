package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/disintegration/imaging"

	"ehcalibre/internal/logging"
	"ehcalibre/pkg/models"
)

// writeLinks attaches authors, publisher, tags, language, rating and
// identifiers to bookID inside tx.
func writeLinks(ctx context.Context, tx *sql.Tx, bookID int64, e models.CatalogEntry) error {
	for _, name := range e.Authors {
		id, err := ensureItem(ctx, tx, authorsTable, name)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO books_authors_link (book, author) VALUES (?, ?)`, bookID, id); err != nil {
			return fmt.Errorf("link author %q: %w", name, err)
		}
	}

	// Calibre allows a single publisher per book
	if len(e.Publishers) > 0 {
		id, err := ensureItem(ctx, tx, publishersTable, e.Publishers[0])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO books_publishers_link (book, publisher) VALUES (?, ?)`, bookID, id); err != nil {
			return fmt.Errorf("link publisher: %w", err)
		}
	}

	for _, name := range e.Tags {
		id, err := ensureItem(ctx, tx, tagsTable, name)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO books_tags_link (book, tag) VALUES (?, ?)`, bookID, id); err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}

	if e.Language != "" {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO languages (lang_code) VALUES (?)`, e.Language); err != nil {
			return fmt.Errorf("insert language: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO books_languages_link (book, lang_code, item_order)
			SELECT ?, id, 0 FROM languages WHERE lang_code = ?
		`, bookID, e.Language); err != nil {
			return fmt.Errorf("link language: %w", err)
		}
	}

	// rating 0 means unrated
	if e.Rating > 0 {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO ratings (rating) VALUES (?)`, e.Rating); err != nil {
			return fmt.Errorf("insert rating: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO books_ratings_link (book, rating)
			SELECT ?, id FROM ratings WHERE rating = ?
		`, bookID, e.Rating); err != nil {
			return fmt.Errorf("link rating: %w", err)
		}
	}

	for _, ident := range e.Identifiers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO identifiers (book, type, val) VALUES (?, ?, ?)
			ON CONFLICT(book, type) DO UPDATE SET val = excluded.val
		`, bookID, ident.Label, ident.Value); err != nil {
			return fmt.Errorf("upsert identifier %s: %w", ident.Label, err)
		}
	}
	return nil
}

// copyFiles copies entry files and cover into dir and records them on bookID.
// A format the book already has keeps its stored file name, so a retitled
// re-run overwrites the old file instead of adding a second copy.
func copyFiles(ctx context.Context, tx *sql.Tx, bookID int64, dir string, e models.CatalogEntry) error {
	base := fileBase(e, bookID)
	for _, src := range e.Files {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(src)), ".")
		if ext == "" {
			return fmt.Errorf("file %s has no extension", src)
		}
		format := strings.ToUpper(ext)

		name := base
		err := tx.QueryRowContext(ctx, `SELECT name FROM data WHERE book = ? AND format = ?`, bookID, format).Scan(&name)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lookup format %s: %w", format, err)
		}

		size, err := copyFile(src, filepath.Join(dir, name+"."+ext))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO data (book, format, uncompressed_size, name) VALUES (?, ?, ?, ?)
			ON CONFLICT(book, format) DO UPDATE SET uncompressed_size = excluded.uncompressed_size
		`, bookID, format, size, name); err != nil {
			return fmt.Errorf("record format %s: %w", ext, err)
		}
	}

	if e.Cover != "" {
		if err := writeCover(e.Cover, filepath.Join(dir, "cover.jpg")); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("book", bookID).Msg("cover skipped")
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE books SET has_cover = 1 WHERE id = ?`, bookID); err != nil {
			return fmt.Errorf("set has_cover: %w", err)
		}
	}
	return nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return 0, fmt.Errorf("copy %s: %w", src, err)
	}
	return n, out.Close()
}

// writeCover stores the cover as cover.jpg, the only name Calibre reads.
// JPEG sources are copied byte for byte; anything else is re-encoded. dst is
// replaced only once the new cover is complete.
func writeCover(src, dst string) error {
	tmp := strings.TrimSuffix(dst, filepath.Ext(dst)) + ".tmp.jpg"
	switch strings.ToLower(filepath.Ext(src)) {
	case ".jpg", ".jpeg":
		if _, err := copyFile(src, tmp); err != nil {
			_ = os.Remove(tmp)
			return err
		}
	default:
		img, err := imaging.Open(src)
		if err != nil {
			return fmt.Errorf("decode cover %s: %w", src, err)
		}
		if err := imaging.Save(img, tmp, imaging.JPEGQuality(90)); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("encode cover: %w", err)
		}
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("install cover: %w", err)
	}
	return nil
}

const pathLimit = 40

var unsafePathChars = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_", `"`, "_", "<", "_", ">", "_", "|", "_",
)

func cleanName(s string) string {
	s = strings.TrimSpace(unsafePathChars.Replace(s))
	return strings.Trim(s, ". ")
}

// safeName makes s usable as one path component, truncated to pathLimit runes.
func safeName(s, fallback string) string {
	s = cleanName(s)
	if utf8.RuneCountInString(s) > pathLimit {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:pathLimit]))
	}
	if s == "" {
		return fallback
	}
	return s
}

func firstAuthor(e models.CatalogEntry) string {
	if len(e.Authors) > 0 {
		return e.Authors[0]
	}
	return "Unknown"
}

// galleryKey is the identifier value the mapper stores under IdentifierLabel.
func galleryKey(e models.CatalogEntry) string {
	for _, ident := range e.Identifiers {
		if ident.Label == IdentifierLabel {
			return ident.Value
		}
	}
	return ""
}

// bookPath is Calibre's "Author/Title (id)" folder.
func bookPath(e models.CatalogEntry, id int64) string {
	author := safeName(firstAuthor(e), "Unknown")
	title := safeName(e.Title, "Unknown")
	return filepath.Join(author, fmt.Sprintf("%s (%d)", title, id))
}

// fileBase is Calibre's "Title - Author" file name without extension. A
// truncated title carries the gallery key so long titles sharing a prefix
// stay apart.
func fileBase(e models.CatalogEntry, id int64) string {
	title := safeName(e.Title, fmt.Sprintf("book %d", id))
	if utf8.RuneCountInString(cleanName(e.Title)) > pathLimit {
		if key := galleryKey(e); key != "" {
			title += " [" + safeName(key, "") + "]"
		} else {
			title += fmt.Sprintf(" [%d]", id)
		}
	}
	return title + " - " + safeName(firstAuthor(e), "Unknown")
}
