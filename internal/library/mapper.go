package library

import (
	"context"
	"math"
	"regexp"
	"strings"

	"ehcalibre/pkg/models"
)

// IdentifierLabel is the identifiers.type under which galleries are stored.
const IdentifierLabel = "ehentai"

// CategoryTagPrefix prefixes the translated gallery category tag.
const CategoryTagPrefix = "分类"

const (
	unknownName     = "Unknown"
	defaultLanguage = "jpn"
)

// Translator resolves a raw tag to its display name. A miss is ok=false.
type Translator interface {
	Translate(ctx context.Context, namespace, raw string) (string, bool, error)
}

// titleRe drops one leading "(convention)" and one leading "[circle (artist)]"
// marker and keeps the rest verbatim.
var titleRe = regexp.MustCompile(`^\s*(?:\([^()]*\))?\s*(?:\[[^\[\]]*\])?\s*(.+?)\s*$`)

var categorySlugs = map[string]string{
	"Misc":      "misc",
	"Doujinshi": "doujinshi",
	"Manga":     "manga",
	"Artist CG": "artistcg",
	"Game CG":   "gamecg",
	"Image Set": "imageset",
	"Cosplay":   "cosplay",
	"Non-H":     "non-h",
	"Western":   "western",
	"private":   "private",
}

// languageCodes maps E-Hentai language tags to the ISO 639-2 codes Calibre stores.
var languageCodes = map[string]string{
	"japanese":   "jpn",
	"english":    "eng",
	"chinese":    "zho",
	"korean":     "kor",
	"french":     "fra",
	"german":     "deu",
	"spanish":    "spa",
	"italian":    "ita",
	"portuguese": "por",
	"russian":    "rus",
	"thai":       "tha",
	"vietnamese": "vie",
	"indonesian": "ind",
	"polish":     "pol",
	"dutch":      "nld",
	"hungarian":  "hun",
	"czech":      "ces",
	"turkish":    "tur",
	"arabic":     "ara",
	"ukrainian":  "ukr",
	"tagalog":    "tgl",
	"finnish":    "fin",
	"swedish":    "swe",
	"norwegian":  "nor",
	"danish":     "dan",
	"greek":      "ell",
	"hebrew":     "heb",
	"romanian":   "ron",
	"slovak":     "slk",
}

// DeriveTitle picks the Japanese title when present and strips the leading
// convention and circle markers.
func DeriveTitle(info *models.GalleryInfo) string {
	title := strings.TrimSpace(info.TitleJpn)
	if title == "" {
		title = strings.TrimSpace(info.Title)
	}
	if m := titleRe.FindStringSubmatch(title); m != nil && m[1] != "" {
		return m[1]
	}
	if title == "" {
		return unknownName
	}
	return title
}

// CategorySlug returns the reclass key for a gallery category.
func CategorySlug(category string) (string, bool) {
	slug, ok := categorySlugs[category]
	return slug, ok
}

// Rating rescales a 0-5 gallery rating to Calibre's 0-10 integer scale.
func Rating(r float64) int {
	v := int(math.Floor(r * 2))
	return min(max(v, 0), 10)
}

// ExternalIdentifier is the durable identifier of a gallery on a site.
func ExternalIdentifier(info *models.GalleryInfo, site models.Site) models.Identifier {
	id := models.GalleryIdentity{GID: info.GID, Token: info.Token, Site: site}
	return models.Identifier{Label: IdentifierLabel, Value: id.ExternalID()}
}

// MapEntry converts a fetched gallery into a catalog record. archivePath is
// attached as the book file when non-empty.
func MapEntry(ctx context.Context, g models.Gallery, site models.Site, tr Translator, archivePath string) (models.CatalogEntry, error) {
	info := g.Info()
	m := mapper{ctx: ctx, tr: tr}

	e := models.CatalogEntry{
		Title:       DeriveTitle(info),
		Rating:      Rating(info.Rating),
		Identifiers: []models.Identifier{ExternalIdentifier(info, site)},
	}
	if !info.Posted.IsZero() {
		e.Pubdate = info.Posted.UTC().Format(calibreTime)
	}
	if archivePath != "" {
		e.Files = []string{archivePath}
	}

	for _, kw := range info.Tags {
		if kw.Namespace == "" || kw.Namespace == "temp" || kw.Value == "" {
			continue
		}
		name, err := m.translate(kw.Namespace, kw.Value)
		if err != nil {
			return e, err
		}

		switch models.Namespace(kw.Namespace) {
		case models.NSArtist:
			e.Authors = appendUnique(e.Authors, name)
		case models.NSGroup:
			e.Publishers = appendUnique(e.Publishers, name)
		case models.NSLanguage:
			if code, ok := languageCodes[strings.ToLower(kw.Value)]; ok && e.Language == "" {
				e.Language = code
			}
			fallthrough
		default:
			display, err := m.translate(string(models.NSRows), kw.Namespace)
			if err != nil {
				return e, err
			}
			e.Tags = appendUnique(e.Tags, display+":"+name)
		}
	}

	if slug, ok := CategorySlug(info.Category); ok {
		name, err := m.translate(string(models.NSReclass), slug)
		if err != nil {
			return e, err
		}
		e.Tags = appendUnique(e.Tags, CategoryTagPrefix+":"+name)
	}

	if len(e.Authors) == 0 {
		e.Authors = []string{unknownName}
	}
	if len(e.Publishers) == 0 {
		e.Publishers = []string{unknownName}
	}
	if e.Language == "" {
		e.Language = defaultLanguage
	}
	return e, nil
}

type mapper struct {
	ctx context.Context
	tr  Translator
}

// translate falls back to raw on a miss.
func (m mapper) translate(namespace, raw string) (string, error) {
	if m.tr == nil {
		return raw, nil
	}
	name, ok, err := m.tr.Translate(m.ctx, namespace, raw)
	if err != nil {
		return "", err
	}
	if !ok || name == "" {
		return raw, nil
	}
	return name, nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
