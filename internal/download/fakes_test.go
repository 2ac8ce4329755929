package download

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ehcalibre/internal/history"
	"ehcalibre/pkg/models"
)

func zipBytes(t *testing.T, entries ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write([]byte(name))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type fakeFetcher struct {
	archive []byte
	err     error
	gate    chan struct{}
	panics  bool

	mu        sync.Mutex
	qualities []models.Quality

	details   atomic.Int32
	metas     atomic.Int32
	downloads atomic.Int32
	current   atomic.Int32
	peak      atomic.Int32
}

func (f *fakeFetcher) enter() {
	n := f.current.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.current.Add(-1)
}

func info(id models.GalleryIdentity) models.GalleryInfo {
	return models.GalleryInfo{
		GID:      id.GID,
		Token:    id.Token,
		Title:    "(C1) [Circle] Story",
		Category: "Manga",
		Rating:   4.2,
		Posted:   time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		Tags:     []models.Keyword{models.ParseKeyword("artist:pen")},
	}
}

func (f *fakeFetcher) FetchDetail(ctx context.Context, id models.GalleryIdentity) (*models.GalleryDetail, error) {
	f.details.Add(1)
	f.enter()
	if f.panics {
		panic("parser exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.GalleryDetail{GalleryInfo: info(id), ArchiverURL: "https://example.invalid/archiver"}, nil
}

func (f *fakeFetcher) FetchMetadata(ctx context.Context, id models.GalleryIdentity) (*models.GalleryMetadata, error) {
	f.metas.Add(1)
	f.enter()
	if f.err != nil {
		return nil, f.err
	}
	return &models.GalleryMetadata{GalleryInfo: info(id)}, nil
}

func (f *fakeFetcher) DownloadArchive(ctx context.Context, d *models.GalleryDetail, q models.Quality) ([]byte, error) {
	f.downloads.Add(1)
	f.mu.Lock()
	f.qualities = append(f.qualities, q)
	f.mu.Unlock()
	return f.archive, nil
}

type fakeCatalog struct {
	mu       sync.Mutex
	added    []models.CatalogEntry
	replaced map[int64]models.CatalogEntry
	books    map[string]int64
	err      error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{replaced: map[int64]models.CatalogEntry{}, books: map[string]int64{}}
}

func (c *fakeCatalog) AddRecord(ctx context.Context, e models.CatalogEntry) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.added = append(c.added, e)
	return int64(len(c.added)), nil
}

func (c *fakeCatalog) ReplaceRecord(ctx context.Context, id int64, e models.CatalogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaced[id] = e
	return c.err
}

func (c *fakeCatalog) FindByIdentifier(ctx context.Context, label, value string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.books[label+":"+value]
	return id, ok, nil
}

func (c *fakeCatalog) entries() []models.CatalogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.CatalogEntry(nil), c.added...)
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []history.Entry
	err     error
}

func (h *fakeHistory) Record(ctx context.Context, e history.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return h.err
}

func (h *fakeHistory) List(ctx context.Context, limit int) ([]history.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]history.Entry, 0, len(h.entries))
	for i := len(h.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.entries[i])
	}
	return out, nil
}

func (h *fakeHistory) all() []history.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]history.Entry(nil), h.entries...)
}

var errUpstream = errors.New("upstream 503")
