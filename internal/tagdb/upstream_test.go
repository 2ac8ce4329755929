package tagdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"ehcalibre/pkg/models"
)

const sampleDataset = `{
  "head": {"sha": "abc"},
  "version": 6,
  "data": [
    {"namespace": "rows", "count": 1, "data": {"female": {"name": "女性", "intro": "", "links": ""}}},
    {"namespace": "artist", "count": 1, "data": {"someone": {"name": "某人", "intro": "intro", "links": "link"}}},
    {"namespace": "temp", "count": 1, "data": {"x": {"name": "y", "intro": "", "links": ""}}}
  ]
}`

func TestGitHubUpstream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/EhTagTranslation/Database/tags", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"v6.9999.0"},{"name":"v6.9998.0"}]`))
	})
	mux.HandleFunc("/EhTagTranslation/Database/releases/download/v6.9999.0/db.text.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleDataset))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	up := NewGitHubUpstream("")
	up.APIBase, up.GitHubBase = srv.URL, srv.URL

	ctx := context.Background()
	v, err := up.LatestVersion(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if v != "v6.9999.0" {
		t.Fatalf("version = %q", v)
	}

	ds, err := up.FetchDataset(ctx, v)
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	if len(ds.Namespaces) != 2 {
		t.Fatalf("namespaces = %d, want temp dropped", len(ds.Namespaces))
	}
	got := ds.Namespaces[models.NSArtist]["someone"]
	if got.Raw != "someone" || got.Name != "某人" || got.Intro != "intro" || got.Links != "link" {
		t.Fatalf("artist record = %+v", got)
	}
}

func TestGitHubUpstreamNoTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	up := NewGitHubUpstream("")
	up.APIBase = srv.URL
	if _, err := up.LatestVersion(context.Background()); err == nil {
		t.Fatal("expected error for empty tag list")
	}
}
