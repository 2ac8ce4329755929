// Package tagdb is the local EhTagTranslation cache: one sqlite table per
// namespace plus a metadata table holding the applied dataset version.
package tagdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ehcalibre/internal/metrics"
	"ehcalibre/pkg/database"
	"ehcalibre/pkg/models"
)

const versionKey = "dataset_tag"

// statements for one namespace table, fixed at init from the closed namespace set
type tableSQL struct {
	create    string
	selectOne string
	selectAll string
	count     string
	insert    string
	update    string
}

var tables = func() map[models.Namespace]tableSQL {
	m := make(map[models.Namespace]tableSQL, len(models.Namespaces))
	for _, ns := range models.Namespaces {
		t := ns.Table()
		m[ns] = tableSQL{
			create: `CREATE TABLE IF NOT EXISTS "` + t + `" (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				raw TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				intro TEXT NOT NULL,
				links TEXT NOT NULL
			);`,
			selectOne: `SELECT name FROM "` + t + `" WHERE raw = ?`,
			selectAll: `SELECT raw, name FROM "` + t + `"`,
			count:     `SELECT COUNT(*) FROM "` + t + `"`,
			insert:    `INSERT INTO "` + t + `" (raw, name, intro, links) VALUES (?, ?, ?, ?)`,
			update:    `UPDATE "` + t + `" SET name = ?, intro = ?, links = ? WHERE raw = ?`,
		}
	}
	return m
}()

func selectInSQL(ns models.Namespace, n int) string {
	return `SELECT raw, name, intro, links FROM "` + ns.Table() + `" WHERE raw IN (?` +
		strings.Repeat(",?", n-1) + `)`
}

func schema() string {
	var b strings.Builder
	for _, ns := range models.Namespaces {
		b.WriteString(tables[ns].create)
		b.WriteString("\n")
	}
	b.WriteString(`CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`)
	return b.String()
}

// Store reads and writes the cache. Lookups may run concurrently with a
// resync; the Syncer makes sure only one resync writes at a time.
type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Open opens (creating if needed) the cache file and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := database.Open(database.Config{Path: path, Create: true})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db, schema()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate tag db: %w", err)
	}
	return NewStore(db), nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Translate looks up the display name of raw within namespace.
// A missing row or an unknown namespace is reported as ok=false, not an error.
func (s *Store) Translate(ctx context.Context, namespace, raw string) (string, bool, error) {
	ns, ok := models.ParseNamespace(namespace)
	if !ok {
		metrics.TagLookups.WithLabelValues("miss").Inc()
		return "", false, nil
	}

	var name string
	err := s.DB.QueryRowContext(ctx, tables[ns].selectOne, raw).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.TagLookups.WithLabelValues("miss").Inc()
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("translate %s:%s: %w", ns, raw, err)
	}
	metrics.TagLookups.WithLabelValues("hit").Inc()
	return name, true, nil
}

// SnapshotAll returns namespace -> raw -> name for every cached row.
func (s *Store) SnapshotAll(ctx context.Context) (map[models.Namespace]map[string]string, error) {
	out := make(map[models.Namespace]map[string]string, len(models.Namespaces))
	for _, ns := range models.Namespaces {
		rows, err := s.DB.QueryContext(ctx, tables[ns].selectAll)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", ns, err)
		}
		m := make(map[string]string)
		for rows.Next() {
			var raw, name string
			if err := rows.Scan(&raw, &name); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s row: %w", ns, err)
			}
			m[raw] = name
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("snapshot %s rows: %w", ns, err)
		}
		out[ns] = m
	}
	return out, nil
}

// Version returns the stored dataset version, or "" before the first sync.
func (s *Store) Version(ctx context.Context) (string, error) {
	var v string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, versionKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read version: %w", err)
	}
	return v, nil
}

func (s *Store) setVersion(ctx context.Context, v string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, versionKey, v)
	if err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	return nil
}

// Stats is a row count per namespace plus the stored version.
type Stats struct {
	Version string                   `json:"version"`
	Counts  map[models.Namespace]int `json:"counts"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Counts: make(map[models.Namespace]int, len(models.Namespaces))}
	v, err := s.Version(ctx)
	if err != nil {
		return st, err
	}
	st.Version = v
	for _, ns := range models.Namespaces {
		var n int
		if err := s.DB.QueryRowContext(ctx, tables[ns].count).Scan(&n); err != nil {
			return st, fmt.Errorf("count %s: %w", ns, err)
		}
		st.Counts[ns] = n
	}
	return st, nil
}

// existing loads the rows for exactly the given raw keys, chunkSize keys per query.
func (s *Store) existing(ctx context.Context, ns models.Namespace, raws []string) (map[string]models.TagRecord, error) {
	out := make(map[string]models.TagRecord, len(raws))
	for start := 0; start < len(raws); start += chunkSize {
		end := min(start+chunkSize, len(raws))
		chunk := raws[start:end]

		args := make([]any, len(chunk))
		for i, r := range chunk {
			args[i] = r
		}

		rows, err := s.DB.QueryContext(ctx, selectInSQL(ns, len(chunk)), args...)
		if err != nil {
			return nil, fmt.Errorf("lookup %s chunk: %w", ns, err)
		}
		for rows.Next() {
			var r models.TagRecord
			if err := rows.Scan(&r.Raw, &r.Name, &r.Intro, &r.Links); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s row: %w", ns, err)
			}
			out[r.Raw] = r
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("lookup %s rows: %w", ns, err)
		}
	}
	return out, nil
}

// apply writes inserts and updates for one namespace in a single transaction.
func (s *Store) apply(ctx context.Context, ns models.Namespace, inserts, updates []models.TagRecord) error {
	if len(inserts) == 0 && len(updates) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if len(inserts) > 0 {
		stmt, err := tx.PrepareContext(ctx, tables[ns].insert)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range inserts {
			if _, err := stmt.ExecContext(ctx, r.Raw, r.Name, r.Intro, r.Links); err != nil {
				return fmt.Errorf("insert %s:%s: %w", ns, r.Raw, err)
			}
		}
	}

	if len(updates) > 0 {
		stmt, err := tx.PrepareContext(ctx, tables[ns].update)
		if err != nil {
			return fmt.Errorf("prepare update: %w", err)
		}
		defer stmt.Close()
		for _, r := range updates {
			if _, err := stmt.ExecContext(ctx, r.Name, r.Intro, r.Links, r.Raw); err != nil {
				return fmt.Errorf("update %s:%s: %w", ns, r.Raw, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", ns, err)
	}
	return nil
}
