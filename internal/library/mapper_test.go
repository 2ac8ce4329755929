package library

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"ehcalibre/pkg/models"
)

type mapTranslator map[string]string

func (m mapTranslator) Translate(_ context.Context, ns, raw string) (string, bool, error) {
	name, ok := m[ns+":"+raw]
	return name, ok, nil
}

type failingTranslator struct{}

func (failingTranslator) Translate(context.Context, string, string) (string, bool, error) {
	return "", false, errors.New("db closed")
}

func TestDeriveTitle(t *testing.T) {
	cases := []struct {
		title, jpn, want string
	}{
		{"(Group) [Artist] Real Title (note)", "", "Real Title (note)"},
		{"[Artist] Title", "(C99) [サークル (作者)] 本当のタイトル [中国翻訳]", "本当のタイトル [中国翻訳]"},
		{"  Plain  ", "", "Plain"},
		{"[Only Bracket]", "", "[Only Bracket]"},
		{"", "", "Unknown"},
	}
	for _, c := range cases {
		got := DeriveTitle(&models.GalleryInfo{Title: c.title, TitleJpn: c.jpn})
		if got != c.want {
			t.Errorf("DeriveTitle(%q, %q) = %q, want %q", c.title, c.jpn, got, c.want)
		}
	}
}

func TestRating(t *testing.T) {
	cases := map[float64]int{0: 0, 2.26: 4, 4.5: 9, 4.99: 9, 5: 10, -1: 0, 7: 10}
	for in, want := range cases {
		if got := Rating(in); got != want {
			t.Errorf("Rating(%v) = %d, want %d", in, got, want)
		}
	}
}

func gallery() *models.GalleryDetail {
	return &models.GalleryDetail{GalleryInfo: models.GalleryInfo{
		GID:      123,
		Token:    "abcdef",
		Title:    "(C1) [Circle (Pen)] Story",
		Category: "Doujinshi",
		Posted:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Rating:   4.6,
		Tags: []models.Keyword{
			models.ParseKeyword("artist:pen"),
			models.ParseKeyword("group:circle"),
			models.ParseKeyword("language:chinese"),
			models.ParseKeyword("language:translated"),
			models.ParseKeyword("female:glasses"),
			models.ParseKeyword("temp:whatever"),
			models.ParseKeyword("plain"),
		},
	}}
}

func TestMapEntry(t *testing.T) {
	tr := mapTranslator{
		"artist:pen":        "笔",
		"female:glasses":    "眼镜",
		"rows:female":       "女性",
		"rows:language":     "语言",
		"language:chinese":  "汉语",
		"reclass:doujinshi": "同人志",
	}

	e, err := MapEntry(context.Background(), gallery(), models.SiteExHentai, tr, "/out/123_abcdef/123_abcdef.cbz")
	if err != nil {
		t.Fatal(err)
	}

	if e.Title != "Story" {
		t.Errorf("title = %q", e.Title)
	}
	if !reflect.DeepEqual(e.Authors, []string{"笔"}) {
		t.Errorf("authors = %v", e.Authors)
	}
	if !reflect.DeepEqual(e.Publishers, []string{"circle"}) {
		t.Errorf("publishers = %v", e.Publishers)
	}
	if e.Language != "zho" {
		t.Errorf("language = %q", e.Language)
	}
	wantTags := []string{"语言:汉语", "语言:translated", "女性:眼镜", "分类:同人志"}
	if !reflect.DeepEqual(e.Tags, wantTags) {
		t.Errorf("tags = %v, want %v", e.Tags, wantTags)
	}
	if e.Rating != 9 {
		t.Errorf("rating = %d", e.Rating)
	}
	want := []models.Identifier{{Label: "ehentai", Value: "123_abcdef_1"}}
	if !reflect.DeepEqual(e.Identifiers, want) {
		t.Errorf("identifiers = %v", e.Identifiers)
	}
	if e.Pubdate != "2024-01-02 03:04:05.000000+00:00" {
		t.Errorf("pubdate = %q", e.Pubdate)
	}
	if !reflect.DeepEqual(e.Files, []string{"/out/123_abcdef/123_abcdef.cbz"}) {
		t.Errorf("files = %v", e.Files)
	}
}

func TestMapEntryDefaults(t *testing.T) {
	m := &models.GalleryMetadata{GalleryInfo: models.GalleryInfo{GID: 1, Token: "t", Title: "X", Category: "Weird"}}

	e, err := MapEntry(context.Background(), m, models.SiteEHentai, mapTranslator{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(e.Authors, []string{"Unknown"}) || !reflect.DeepEqual(e.Publishers, []string{"Unknown"}) {
		t.Errorf("authors = %v publishers = %v", e.Authors, e.Publishers)
	}
	if e.Language != "jpn" {
		t.Errorf("language = %q", e.Language)
	}
	if len(e.Tags) != 0 || len(e.Files) != 0 {
		t.Errorf("tags = %v files = %v", e.Tags, e.Files)
	}
	if e.Identifiers[0].Value != "1_t_0" {
		t.Errorf("identifier = %v", e.Identifiers)
	}
}

func TestMapEntryTranslatorError(t *testing.T) {
	if _, err := MapEntry(context.Background(), gallery(), models.SiteEHentai, failingTranslator{}, ""); err == nil {
		t.Fatal("expected translator error")
	}
}
