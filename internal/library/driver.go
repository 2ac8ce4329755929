package library

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// driverName is sqlite3 plus the SQL functions Calibre's triggers call.
const driverName = "sqlite3_calibre"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("title_sort", titleSort, true); err != nil {
				return err
			}
			if err := conn.RegisterFunc("uuid4", uuid.NewString, false); err != nil {
				return err
			}
			if err := conn.RegisterFunc("author_to_author_sort", authorSort, true); err != nil {
				return err
			}
			return conn.RegisterFunc("books_list_filter", func(int64) int64 { return 1 }, true)
		},
	})
}

var leadingArticles = []string{"The ", "A ", "An "}

// titleSort moves a leading English article to the end: "The X" -> "X, The".
func titleSort(title string) string {
	t := strings.TrimSpace(title)
	for _, a := range leadingArticles {
		if len(t) > len(a) && strings.EqualFold(t[:len(a)], a) {
			return strings.TrimSpace(t[len(a):]) + ", " + strings.TrimSpace(t[:len(a)])
		}
	}
	return t
}

func authorSort(name string) string {
	return strings.TrimSpace(name)
}
