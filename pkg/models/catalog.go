package models

// Identifier is a labelled external id attached to a catalog book.
type Identifier struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// CatalogEntry is the record shape written to the Calibre library.
type CatalogEntry struct {
	Title       string       `json:"title"`
	Authors     []string     `json:"authors"`
	Publishers  []string     `json:"publishers"`
	Tags        []string     `json:"tags"`
	Language    string       `json:"language"`
	Rating      int          `json:"rating"`
	Identifiers []Identifier `json:"identifiers"`
	Pubdate     string       `json:"pubdate,omitempty"`

	// Files holds archive paths to copy into the library. Empty on replace.
	Files []string `json:"files,omitempty"`
	Cover string   `json:"cover,omitempty"`
}

// CatalogItem is a named author, publisher or tag row.
type CatalogItem struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
