package library

import (
	"context"
	"strings"

	"ehcalibre/pkg/models"
)

// Snapshot is namespace -> raw -> translated name.
type Snapshot map[models.Namespace]map[string]string

// TranslateResult counts the items renamed by ApplyTranslations.
type TranslateResult struct {
	Authors    int `json:"authors"`
	Publishers int `json:"publishers"`
	Tags       int `json:"tags"`
}

func (r TranslateResult) Total() int {
	return r.Authors + r.Publishers + r.Tags
}

// ApplyTranslations renames catalog authors, publishers and tags that still
// carry raw values for which snap now has a translation.
func (l *Library) ApplyTranslations(ctx context.Context, snap Snapshot) (TranslateResult, error) {
	var res TranslateResult

	authors, err := l.ListAuthors(ctx)
	if err != nil {
		return res, err
	}
	for _, it := range authors {
		if name, ok := lookup(snap, models.NSArtist, it.Name); ok {
			if err := l.RenameAuthor(ctx, it.ID, name); err != nil {
				return res, err
			}
			res.Authors++
		}
	}

	publishers, err := l.ListPublishers(ctx)
	if err != nil {
		return res, err
	}
	for _, it := range publishers {
		if name, ok := lookup(snap, models.NSGroup, it.Name); ok {
			if err := l.RenamePublisher(ctx, it.ID, name); err != nil {
				return res, err
			}
			res.Publishers++
		}
	}

	tags, err := l.ListTags(ctx)
	if err != nil {
		return res, err
	}
	displays := reverse(snap[models.NSRows])
	for _, it := range tags {
		name, ok := translateTag(snap, displays, it.Name)
		if !ok {
			continue
		}
		if err := l.RenameTag(ctx, it.ID, name); err != nil {
			return res, err
		}
		res.Tags++
	}
	return res, nil
}

// translateTag rewrites "ns:raw" tags. The prefix may be a raw namespace or
// an already translated namespace display name.
func translateTag(snap Snapshot, displays map[string]string, tag string) (string, bool) {
	prefix, value, ok := strings.Cut(tag, ":")
	if !ok || value == "" {
		return "", false
	}

	if prefix == CategoryTagPrefix {
		name, ok := lookup(snap, models.NSReclass, value)
		if !ok {
			return "", false
		}
		return CategoryTagPrefix + ":" + name, true
	}

	ns, ok := models.ParseNamespace(prefix)
	if !ok {
		raw, found := displays[prefix]
		if !found {
			return "", false
		}
		ns = models.Namespace(raw)
	}

	display := prefix
	if d, ok := snap[models.NSRows][string(ns)]; ok && d != "" {
		display = d
	}
	name := value
	if n, ok := snap[ns][value]; ok && n != "" {
		name = n
	}

	out := display + ":" + name
	if out == tag {
		return "", false
	}
	return out, true
}

// lookup reports a translation for raw that differs from raw.
func lookup(snap Snapshot, ns models.Namespace, raw string) (string, bool) {
	name, ok := snap[ns][raw]
	if !ok || name == "" || name == raw {
		return "", false
	}
	return name, true
}

func reverse(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}
