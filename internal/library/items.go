package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ehcalibre/internal/metrics"
	"ehcalibre/pkg/models"
)

// itemTable describes a named item table and its link table. Only the
// three values below exist.
type itemTable struct {
	table   string
	link    string
	linkCol string
	hasSort bool
}

var (
	authorsTable    = itemTable{table: "authors", link: "books_authors_link", linkCol: "author", hasSort: true}
	publishersTable = itemTable{table: "publishers", link: "books_publishers_link", linkCol: "publisher", hasSort: true}
	tagsTable       = itemTable{table: "tags", link: "books_tags_link", linkCol: "tag"}
)

// ensureItem returns the id of the row named name, inserting it if needed.
func ensureItem(ctx context.Context, tx *sql.Tx, t itemTable, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM `+t.table+` WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("find %s %q: %w", t.table, name, err)
	}

	var res sql.Result
	if t.hasSort {
		res, err = tx.ExecContext(ctx, `INSERT INTO `+t.table+` (name, sort) VALUES (?, ?)`, name, authorSort(name))
	} else {
		res, err = tx.ExecContext(ctx, `INSERT INTO `+t.table+` (name) VALUES (?)`, name)
	}
	if err != nil {
		return 0, fmt.Errorf("insert %s %q: %w", t.table, name, err)
	}
	return res.LastInsertId()
}

func (l *Library) ListAuthors(ctx context.Context) ([]models.CatalogItem, error) {
	return l.list(ctx, authorsTable)
}

func (l *Library) ListPublishers(ctx context.Context) ([]models.CatalogItem, error) {
	return l.list(ctx, publishersTable)
}

func (l *Library) ListTags(ctx context.Context) ([]models.CatalogItem, error) {
	return l.list(ctx, tagsTable)
}

func (l *Library) list(ctx context.Context, t itemTable) ([]models.CatalogItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.DB.QueryContext(ctx, `SELECT id, name FROM `+t.table+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.table, err)
	}
	defer rows.Close()

	var out []models.CatalogItem
	for rows.Next() {
		var it models.CatalogItem
		if err := rows.Scan(&it.ID, &it.Name); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.table, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (l *Library) RenameAuthor(ctx context.Context, id int64, name string) error {
	return l.rename(ctx, authorsTable, id, name)
}

func (l *Library) RenamePublisher(ctx context.Context, id int64, name string) error {
	return l.rename(ctx, publishersTable, id, name)
}

func (l *Library) RenameTag(ctx context.Context, id int64, name string) error {
	return l.rename(ctx, tagsTable, id, name)
}

// rename sets the name of item id. When another item already has that name,
// id's books are moved onto it and id is deleted.
func (l *Library) rename(ctx context.Context, t itemTable, id int64, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.renameTx(ctx, t, id, name)
	metrics.CatalogOps.WithLabelValues("rename_"+t.linkCol, metrics.Result(err)).Inc()
	return err
}

func (l *Library) renameTx(ctx context.Context, t itemTable, id int64, name string) error {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var target int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM `+t.table+` WHERE name = ? AND id <> ?`, name, id).Scan(&target)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		var res sql.Result
		if t.hasSort {
			res, err = tx.ExecContext(ctx, `UPDATE `+t.table+` SET name = ?, sort = ? WHERE id = ?`, name, authorSort(name), id)
		} else {
			res, err = tx.ExecContext(ctx, `UPDATE `+t.table+` SET name = ? WHERE id = ?`, name, id)
		}
		if err != nil {
			return fmt.Errorf("rename %s %d: %w", t.table, id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%s %d not found", t.table, id)
		}
	case err != nil:
		return fmt.Errorf("find %s %q: %w", t.table, name, err)
	default:
		if _, err := tx.ExecContext(ctx, `UPDATE OR IGNORE `+t.link+` SET `+t.linkCol+` = ? WHERE `+t.linkCol+` = ?`, target, id); err != nil {
			return fmt.Errorf("merge %s links: %w", t.table, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+t.link+` WHERE `+t.linkCol+` = ?`, id); err != nil {
			return fmt.Errorf("drop %s links: %w", t.table, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+t.table+` WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete %s %d: %w", t.table, id, err)
		}
		id = target
	}

	if t == authorsTable {
		if _, err := tx.ExecContext(ctx, `
			UPDATE books SET author_sort = (
				SELECT group_concat(a.sort, ' & ') FROM books_authors_link l
				JOIN authors a ON a.id = l.author WHERE l.book = books.id
			) WHERE id IN (SELECT book FROM books_authors_link WHERE author = ?)
		`, id); err != nil {
			return fmt.Errorf("refresh author_sort: %w", err)
		}
	}

	return tx.Commit()
}
