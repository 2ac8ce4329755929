package models

import (
	"fmt"
	"strings"
	"time"
)

// Site is the host identity a gallery is addressed under.
type Site int

const (
	SiteEHentai Site = iota
	SiteExHentai
)

func (s Site) Host() string {
	if s == SiteExHentai {
		return "exhentai.org"
	}
	return "e-hentai.org"
}

// Flag is the numeric site marker used in external identifiers.
func (s Site) Flag() int {
	if s == SiteExHentai {
		return 1
	}
	return 0
}

func (s Site) String() string { return s.Host() }

// ParseSite accepts a host name or the short forms "eh" / "ex".
func ParseSite(v string) (Site, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "eh", "e-hentai", "e-hentai.org":
		return SiteEHentai, nil
	case "ex", "exhentai", "exhentai.org":
		return SiteExHentai, nil
	default:
		return SiteEHentai, fmt.Errorf("unknown site %q", v)
	}
}

// GalleryIdentity is immutable once parsed from a gallery URL.
type GalleryIdentity struct {
	GID   int64
	Token string
	Site  Site
}

// Key is the on-disk directory name and log label of the gallery.
func (g GalleryIdentity) Key() string {
	return fmt.Sprintf("%d_%s", g.GID, g.Token)
}

func (g GalleryIdentity) URL() string {
	return fmt.Sprintf("https://%s/g/%d/%s/", g.Site.Host(), g.GID, g.Token)
}

// ExternalID is the durable identifier stored on catalog records.
func (g GalleryIdentity) ExternalID() string {
	return fmt.Sprintf("%d_%s_%d", g.GID, g.Token, g.Site.Flag())
}

// Quality selects which archive flavour the archiver produces.
type Quality string

const (
	QualityOriginal Quality = "original"
	QualityResample Quality = "resample"
)

func ParseQuality(v string) (Quality, error) {
	switch Quality(strings.ToLower(strings.TrimSpace(v))) {
	case QualityOriginal:
		return QualityOriginal, nil
	case QualityResample:
		return QualityResample, nil
	default:
		return "", fmt.Errorf("unknown download type %q", v)
	}
}

// GalleryInfo holds the descriptive fields shared by both gallery variants.
type GalleryInfo struct {
	GID       int64     `json:"gid"`
	Token     string    `json:"token"`
	Title     string    `json:"title"`
	TitleJpn  string    `json:"title_jpn"`
	Category  string    `json:"category"`
	Uploader  string    `json:"uploader"`
	Posted    time.Time `json:"posted"`
	Rating    float64   `json:"rating"`
	FileCount int       `json:"filecount"`
	FileSize  int64     `json:"filesize"`
	Tags      []Keyword `json:"tags"`
}

// Gallery is implemented by every fetched gallery record.
type Gallery interface {
	Info() *GalleryInfo
}

// GalleryDetail is scraped from the gallery page and can be downloaded.
type GalleryDetail struct {
	GalleryInfo
	SizeText    string `json:"size"`
	ArchiverURL string `json:"archiver_url"`
}

func (d *GalleryDetail) Info() *GalleryInfo { return &d.GalleryInfo }

// GalleryMetadata comes from the bulk metadata API and carries no archiver link.
type GalleryMetadata struct {
	GalleryInfo
	ArchiverKey string `json:"archiver_key"`
	Thumb       string `json:"thumb"`
	Expunged    bool   `json:"expunged"`
}

func (m *GalleryMetadata) Info() *GalleryInfo { return &m.GalleryInfo }
