package library

// schema is the subset of a Calibre metadata.db this package reads and
// writes. Every statement is a no-op against an existing Calibre library.
const schema = `
CREATE TABLE IF NOT EXISTS books (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL DEFAULT 'Unknown' COLLATE NOCASE,
	sort TEXT COLLATE NOCASE,
	timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	pubdate TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	series_index REAL NOT NULL DEFAULT 1.0,
	author_sort TEXT COLLATE NOCASE,
	isbn TEXT DEFAULT '' COLLATE NOCASE,
	lccn TEXT DEFAULT '' COLLATE NOCASE,
	path TEXT NOT NULL DEFAULT '',
	flags INTEGER NOT NULL DEFAULT 1,
	uuid TEXT,
	has_cover BOOL DEFAULT 0,
	last_modified TIMESTAMP NOT NULL DEFAULT '2000-01-01 00:00:00+00:00'
);
CREATE TABLE IF NOT EXISTS authors (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL COLLATE NOCASE,
	sort TEXT COLLATE NOCASE,
	link TEXT NOT NULL DEFAULT '',
	UNIQUE(name)
);
CREATE TABLE IF NOT EXISTS books_authors_link (
	id INTEGER PRIMARY KEY,
	book INTEGER NOT NULL,
	author INTEGER NOT NULL,
	UNIQUE(book, author)
);
CREATE TABLE IF NOT EXISTS publishers (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL COLLATE NOCASE,
	sort TEXT COLLATE NOCASE,
	link TEXT NOT NULL DEFAULT '',
	UNIQUE(name)
);
CREATE TABLE IF NOT EXISTS books_publishers_link (
	id INTEGER PRIMARY KEY,
	book INTEGER NOT NULL,
	publisher INTEGER NOT NULL,
	UNIQUE(book)
);
CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL COLLATE NOCASE,
	link TEXT NOT NULL DEFAULT '',
	UNIQUE(name)
);
CREATE TABLE IF NOT EXISTS books_tags_link (
	id INTEGER PRIMARY KEY,
	book INTEGER NOT NULL,
	tag INTEGER NOT NULL,
	UNIQUE(book, tag)
);
CREATE TABLE IF NOT EXISTS languages (
	id INTEGER PRIMARY KEY,
	lang_code TEXT NOT NULL COLLATE NOCASE,
	link TEXT NOT NULL DEFAULT '',
	UNIQUE(lang_code)
);
CREATE TABLE IF NOT EXISTS books_languages_link (
	id INTEGER PRIMARY KEY,
	book INTEGER NOT NULL,
	lang_code INTEGER NOT NULL,
	item_order INTEGER NOT NULL DEFAULT 0,
	UNIQUE(book, lang_code)
);
CREATE TABLE IF NOT EXISTS ratings (
	id INTEGER PRIMARY KEY,
	rating INTEGER CHECK(rating > -1 AND rating < 11),
	link TEXT NOT NULL DEFAULT '',
	UNIQUE(rating)
);
CREATE TABLE IF NOT EXISTS books_ratings_link (
	id INTEGER PRIMARY KEY,
	book INTEGER NOT NULL,
	rating INTEGER NOT NULL,
	UNIQUE(book, rating)
);
CREATE TABLE IF NOT EXISTS identifiers (
	id INTEGER PRIMARY KEY,
	book INTEGER NOT NULL,
	type TEXT NOT NULL DEFAULT 'isbn' COLLATE NOCASE,
	val TEXT NOT NULL COLLATE NOCASE,
	UNIQUE(book, type)
);
CREATE TABLE IF NOT EXISTS data (
	id INTEGER PRIMARY KEY,
	book INTEGER NOT NULL,
	format TEXT NOT NULL COLLATE NOCASE,
	uncompressed_size INTEGER NOT NULL,
	name TEXT NOT NULL,
	UNIQUE(book, format)
);
CREATE TRIGGER IF NOT EXISTS books_insert_trg AFTER INSERT ON books
BEGIN
	UPDATE books SET sort = title_sort(NEW.title), uuid = uuid4() WHERE id = NEW.id;
END;
CREATE TRIGGER IF NOT EXISTS books_update_trg AFTER UPDATE ON books
BEGIN
	UPDATE books SET sort = title_sort(NEW.title) WHERE id = NEW.id AND OLD.title <> NEW.title;
END;
`
