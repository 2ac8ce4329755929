package history

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, key := range []string{"1_a", "2_b", "3_c"} {
		e := Entry{Key: key, Kind: "download", StartedAt: base, FinishedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Record(ctx, Entry{Key: "0_z", Kind: "import", Stage: "copy", Error: "disk full", FinishedAt: base.Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}

	got, err := s.List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, e := range got {
		keys = append(keys, e.Key)
	}
	want := []string{"3_c", "2_b", "1_a", "0_z"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
	last := got[3]
	if last.Succeeded() || last.Stage != "copy" || last.Kind != "import" {
		t.Errorf("failed entry = %+v", last)
	}
	if !got[0].Succeeded() {
		t.Errorf("entry = %+v", got[0])
	}
}

func TestListLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		if err := s.Record(ctx, Entry{Key: "k", Kind: "download", FinishedAt: time.Unix(int64(i), 0)}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got[0].FinishedAt.Equal(time.Unix(4, 0)) {
		t.Fatalf("got = %+v", got)
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("all = %d", len(all))
	}
}

func TestRecordDefaultsFinishTime(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.Record(ctx, Entry{Key: "x"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.List(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].FinishedAt.IsZero() {
		t.Fatalf("got = %+v", got)
	}
}
