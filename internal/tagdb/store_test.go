package tagdb

import (
	"context"
	"testing"

	"ehcalibre/pkg/models"
)

func TestTranslateMissingIsNotError(t *testing.T) {
	s := newTestStore(t)

	if _, ok := mustTranslate(t, s, "artist", "nobody"); ok {
		t.Fatal("expected miss")
	}
	if _, ok := mustTranslate(t, s, "uploader", "x"); ok {
		t.Fatal("unknown namespace should miss")
	}
}

func TestGroupNamespaceUsesGroupsTable(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, models.NSGroup, models.TagRecord{Raw: "circle", Name: "社团"})

	var n int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM groups`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("groups rows = %d", n)
	}
	if name, ok := mustTranslate(t, s, "group", "circle"); !ok || name != "社团" {
		t.Fatalf("got %q %v", name, ok)
	}
}

func TestSnapshotAllAndStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, models.NSRows, models.TagRecord{Raw: "female", Name: "女性"})
	seed(t, s, models.NSReclass, models.TagRecord{Raw: "doujinshi", Name: "同人志"})

	snap, err := s.SnapshotAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != len(models.Namespaces) {
		t.Fatalf("snapshot namespaces = %d", len(snap))
	}
	if snap[models.NSRows]["female"] != "女性" || snap[models.NSReclass]["doujinshi"] != "同人志" {
		t.Fatalf("snapshot = %+v", snap)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Counts[models.NSRows] != 1 || st.Counts[models.NSArtist] != 0 || st.Version != "" {
		t.Fatalf("stats = %+v", st)
	}
}

func TestApplyRollsBackNamespaceOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, models.NSMixed, models.TagRecord{Raw: "dup", Name: "x"})

	err := s.apply(ctx, models.NSMixed, []models.TagRecord{{Raw: "new", Name: "n"}, {Raw: "dup", Name: "y"}}, nil)
	if err == nil {
		t.Fatal("expected unique violation")
	}
	if _, ok := mustTranslate(t, s, "mixed", "new"); ok {
		t.Fatal("partial namespace write was committed")
	}
}
