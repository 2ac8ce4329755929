package ehentai

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ehcalibre/pkg/models"
)

var ErrInvalidGalleryURL = errors.New("invalid gallery url")

var galleryURLRe = regexp.MustCompile(`^https?://(?:www\.)?(e-hentai|exhentai)\.org/g/(\d+)/([0-9A-Za-z]+)/?(?:[?#].*)?$`)

// ParseGalleryURL extracts the gallery identity from a gallery page URL.
// The returned Site is the host the URL was written with.
func ParseGalleryURL(raw string) (models.GalleryIdentity, error) {
	m := galleryURLRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return models.GalleryIdentity{}, fmt.Errorf("%w: %q", ErrInvalidGalleryURL, raw)
	}
	gid, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil || gid <= 0 {
		return models.GalleryIdentity{}, fmt.Errorf("%w: bad gid in %q", ErrInvalidGalleryURL, raw)
	}
	site := models.SiteEHentai
	if m[1] == "exhentai" {
		site = models.SiteExHentai
	}
	return models.GalleryIdentity{GID: gid, Token: m[3], Site: site}, nil
}

// Normalize parses raw and rewrites it onto the configured site, so both host
// spellings of a gallery map to the same identity and job key.
func Normalize(raw string, site models.Site) (models.GalleryIdentity, error) {
	id, err := ParseGalleryURL(raw)
	if err != nil {
		return id, err
	}
	id.Site = site
	return id, nil
}
