package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"ehcalibre/internal/archive"
	"ehcalibre/pkg/models"
)

const testURL = "https://e-hentai.org/g/123/abcdef1234/"

type env struct {
	m       *Manager
	fetcher *fakeFetcher
	catalog *fakeCatalog
	hist    *fakeHistory
	root    string
}

func newEnv(t *testing.T, limit int) *env {
	t.Helper()
	e := &env{
		fetcher: &fakeFetcher{archive: zipBytes(t, "b.txt", "a.png", "c.jpg")},
		catalog: newFakeCatalog(),
		hist:    &fakeHistory{},
		root:    t.TempDir(),
	}
	cfg := Config{Site: models.SiteExHentai, OutputRoot: e.root, Limit: limit}
	e.m = NewManager(context.Background(), cfg, e.fetcher, e.catalog, nil, e.hist)
	t.Cleanup(e.m.Wait)
	return e
}

func TestDownloadPipeline(t *testing.T) {
	e := newEnv(t, 2)

	key, err := e.m.SubmitDownload(testURL, models.QualityResample)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if key != "123_abcdef1234" {
		t.Errorf("key = %q", key)
	}
	e.m.Wait()

	p := archive.Layout(e.root, models.GalleryIdentity{GID: 123, Token: "abcdef1234"})
	if !archive.Exists(p.Archive) {
		t.Fatal("archive not written")
	}
	if _, err := os.Stat(p.Sidecar(archive.DetailSidecar)); err != nil {
		t.Errorf("sidecar: %v", err)
	}

	added := e.catalog.entries()
	if len(added) != 1 {
		t.Fatalf("catalog adds = %d", len(added))
	}
	got := added[0]
	if got.Title != "Story" || !reflect.DeepEqual(got.Authors, []string{"pen"}) {
		t.Errorf("entry = %+v", got)
	}
	if !reflect.DeepEqual(got.Files, []string{p.Archive}) {
		t.Errorf("files = %v", got.Files)
	}
	if got.Cover != filepath.Join(p.Dir, "cover.png") {
		t.Errorf("cover = %q", got.Cover)
	}
	if got.Identifiers[0].Value != "123_abcdef1234_1" {
		t.Errorf("identifier = %v", got.Identifiers)
	}

	h := e.hist.all()
	if len(h) != 1 || h[0].Key != key || h[0].Kind != "download" || !h[0].Succeeded() {
		t.Errorf("history = %+v", h)
	}
	if len(e.m.Tasks()) != 0 {
		t.Errorf("tasks = %v", e.m.Tasks())
	}
}

func TestDuplicateRejectedWhileActive(t *testing.T) {
	e := newEnv(t, 2)
	e.fetcher.gate = make(chan struct{})

	if _, err := e.m.SubmitDownload(testURL, models.QualityOriginal); err != nil {
		t.Fatal(err)
	}
	// same gallery on the other host maps to the same key
	_, err := e.m.SubmitDownload("https://exhentai.org/g/123/abcdef1234/?p=2", models.QualityOriginal)
	if !errors.Is(err, ErrAlreadyInProgress) {
		t.Fatalf("second submit err = %v", err)
	}
	if _, err := e.m.SubmitImport(testURL, "/nonexistent.cbz"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("import err = %v", err)
	}
	if tasks := e.m.Tasks(); !reflect.DeepEqual(tasks, []string{"123_abcdef1234"}) {
		t.Errorf("tasks = %v", tasks)
	}

	close(e.fetcher.gate)
	e.m.Wait()

	if _, err := e.m.SubmitDownload(testURL, models.QualityOriginal); err != nil {
		t.Fatalf("resubmit after finish: %v", err)
	}
}

func TestConcurrencyBound(t *testing.T) {
	const limit = 2
	e := newEnv(t, limit)
	e.fetcher.gate = make(chan struct{})

	for i := 1; i <= 6; i++ {
		url := fmt.Sprintf("https://e-hentai.org/g/%d/tok%d/", i, i)
		if _, err := e.m.SubmitDownload(url, models.QualityOriginal); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(e.m.Tasks()); n != 6 {
		t.Fatalf("tasks = %d", n)
	}

	deadline := time.Now().Add(2 * time.Second)
	for e.fetcher.current.Load() < limit && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if c := e.fetcher.current.Load(); c != limit {
		t.Errorf("in flight = %d, want %d", c, limit)
	}

	close(e.fetcher.gate)
	e.m.Wait()

	if p := e.fetcher.peak.Load(); p > limit {
		t.Errorf("peak in flight = %d, limit %d", p, limit)
	}
	if n := len(e.catalog.entries()); n != 6 {
		t.Errorf("catalog adds = %d", n)
	}
}

func TestArchiveDownloadedOnce(t *testing.T) {
	e := newEnv(t, 1)

	for i := 0; i < 2; i++ {
		if _, err := e.m.SubmitDownload(testURL, models.QualityOriginal); err != nil {
			t.Fatal(err)
		}
		e.m.Wait()
	}

	if n := e.fetcher.downloads.Load(); n != 1 {
		t.Errorf("archive downloads = %d, want 1", n)
	}
	if n := e.fetcher.details.Load(); n != 2 {
		t.Errorf("detail fetches = %d, want 2", n)
	}
	if n := len(e.catalog.entries()); n != 2 {
		t.Errorf("catalog adds = %d, want 2", n)
	}
}

func TestImport(t *testing.T) {
	e := newEnv(t, 1)
	src := filepath.Join(t.TempDir(), "local.zip")
	if err := os.WriteFile(src, zipBytes(t, "01.jpg"), 0o644); err != nil {
		t.Fatal(err)
	}

	bad := filepath.Join(t.TempDir(), "local.rar")
	if err := os.WriteFile(bad, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{bad, t.TempDir(), filepath.Join(t.TempDir(), "missing.cbz")} {
		if _, err := e.m.SubmitImport(testURL, path); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("import %s: err = %v", path, err)
		}
	}
	if len(e.m.Tasks()) != 0 {
		t.Fatal("rejected import left a task")
	}

	if _, err := e.m.SubmitImport(testURL, src); err != nil {
		t.Fatalf("import: %v", err)
	}
	e.m.Wait()

	p := archive.Layout(e.root, models.GalleryIdentity{GID: 123, Token: "abcdef1234"})
	if !archive.Exists(p.Archive) {
		t.Fatal("archive not copied")
	}
	if _, err := os.Stat(p.Sidecar(archive.MetadataSidecar)); err != nil {
		t.Errorf("metadata sidecar: %v", err)
	}
	if e.fetcher.metas.Load() != 1 || e.fetcher.downloads.Load() != 0 {
		t.Errorf("metas = %d downloads = %d", e.fetcher.metas.Load(), e.fetcher.downloads.Load())
	}
	added := e.catalog.entries()
	if len(added) != 1 || added[0].Cover != filepath.Join(p.Dir, "cover.jpg") {
		t.Errorf("added = %+v", added)
	}
}

func TestReplace(t *testing.T) {
	e := newEnv(t, 1)
	e.catalog.books["ehentai:123_abcdef1234_1"] = 42

	if _, err := e.m.SubmitReplace(testURL); err != nil {
		t.Fatal(err)
	}
	e.m.Wait()

	got, ok := e.catalog.replaced[42]
	if !ok {
		t.Fatal("book 42 not replaced")
	}
	if got.Title != "Story" || len(got.Files) != 0 || got.Cover != "" {
		t.Errorf("entry = %+v", got)
	}

	if _, err := e.m.SubmitReplace("https://e-hentai.org/g/9/zz/"); err != nil {
		t.Fatal(err)
	}
	e.m.Wait()
	h := e.hist.all()
	last := h[len(h)-1]
	if last.Stage != string(StageFind) || last.Succeeded() {
		t.Errorf("missing book history = %+v", last)
	}
}

func TestFailureReleasesKey(t *testing.T) {
	e := newEnv(t, 1)
	e.fetcher.err = errUpstream

	if _, err := e.m.SubmitDownload(testURL, models.QualityOriginal); err != nil {
		t.Fatal(err)
	}
	e.m.Wait()

	if len(e.m.Tasks()) != 0 {
		t.Fatalf("tasks = %v", e.m.Tasks())
	}
	if len(e.catalog.entries()) != 0 {
		t.Fatal("catalog written after failure")
	}
	h := e.hist.all()
	if len(h) != 1 || h[0].Stage != string(StageFetchDetail) || h[0].Succeeded() {
		t.Fatalf("history = %+v", h)
	}

	e.fetcher.err = nil
	if _, err := e.m.SubmitDownload(testURL, models.QualityOriginal); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
}

func TestCatalogFailureIsTerminal(t *testing.T) {
	e := newEnv(t, 1)
	e.catalog.err = errors.New("database is locked")

	if _, err := e.m.SubmitDownload(testURL, models.QualityOriginal); err != nil {
		t.Fatal(err)
	}
	e.m.Wait()

	h := e.hist.all()
	if len(h) != 1 || h[0].Stage != string(StageCatalog) {
		t.Fatalf("history = %+v", h)
	}
}

func TestPanicReleasesSlot(t *testing.T) {
	e := newEnv(t, 1)
	e.fetcher.panics = true

	if _, err := e.m.SubmitDownload(testURL, models.QualityOriginal); err != nil {
		t.Fatal(err)
	}
	e.m.Wait()

	h := e.hist.all()
	if len(h) != 1 || h[0].Stage != string(StagePanic) {
		t.Fatalf("history = %+v", h)
	}

	e.fetcher.panics = false
	if _, err := e.m.SubmitDownload(testURL, models.QualityOriginal); err != nil {
		t.Fatal(err)
	}
	e.m.Wait()
	if len(e.catalog.entries()) != 1 {
		t.Fatal("slot was not released after panic")
	}
}

func TestInvalidURL(t *testing.T) {
	e := newEnv(t, 1)
	for _, u := range []string{"", "https://example.com/g/1/a/", "https://e-hentai.org/s/1/a/"} {
		if _, err := e.m.SubmitDownload(u, models.QualityOriginal); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("SubmitDownload(%q) err = %v", u, err)
		}
	}
}

func TestJobErrorUnwrap(t *testing.T) {
	err := error(&JobError{Key: "1_a", Kind: KindDownload, Stage: StageArchive, Err: errUpstream})
	if !errors.Is(err, errUpstream) {
		t.Error("JobError does not unwrap")
	}
	if err.Error() != "download 1_a: archive: upstream 503" {
		t.Errorf("message = %q", err.Error())
	}
}
