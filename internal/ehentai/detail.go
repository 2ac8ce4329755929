package ehentai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ehcalibre/pkg/models"
)

var (
	ErrGalleryUnavailable = errors.New("gallery unavailable")

	popUpRe  = regexp.MustCompile(`popUp\('([^']+)'`)
	ratingRe = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)`)
	lengthRe = regexp.MustCompile(`^([0-9,]+)`)
)

// FetchDetail scrapes the gallery page.
func (c *Client) FetchDetail(ctx context.Context, id models.GalleryIdentity) (*models.GalleryDetail, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.galleryURL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	body, err := c.pages.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch gallery page: %w", err)
	}
	d, err := ParseDetail(body)
	if err != nil {
		return nil, err
	}
	d.GID, d.Token = id.GID, id.Token
	return d, nil
}

// ParseDetail reads a gallery page. GID and Token are taken from the
// archiver link when present; callers overwrite them with the requested id.
func ParseDetail(body []byte) (*models.GalleryDetail, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		// exhentai answers an empty page to unauthenticated clients
		return nil, fmt.Errorf("%w: empty page, check exhentai cookies", ErrGalleryUnavailable)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse gallery page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("#gn").First().Text())
	if title == "" {
		msg := strings.TrimSpace(doc.Find(".d p").First().Text())
		if msg == "" {
			msg = "no title on page"
		}
		return nil, fmt.Errorf("%w: %s", ErrGalleryUnavailable, msg)
	}

	d := &models.GalleryDetail{}
	d.Title = title
	d.TitleJpn = strings.TrimSpace(doc.Find("#gj").First().Text())
	d.Category = strings.TrimSpace(doc.Find("#gdc div").First().Text())
	d.Uploader = strings.TrimSpace(doc.Find("#gdn a").First().Text())

	doc.Find("#gdd tr").Each(func(_ int, tr *goquery.Selection) {
		label := strings.TrimSuffix(strings.TrimSpace(tr.Find(".gdt1").Text()), ":")
		value := strings.TrimSpace(tr.Find(".gdt2").Text())
		switch label {
		case "Posted":
			if t, err := time.Parse("2006-01-02 15:04", value); err == nil {
				d.Posted = t.UTC()
			}
		case "File Size":
			d.SizeText = value
			d.FileSize = parseSize(value)
		case "Length":
			if m := lengthRe.FindStringSubmatch(value); m != nil {
				d.FileCount, _ = strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
			}
		}
	})

	if m := ratingRe.FindStringSubmatch(doc.Find("#rating_label").Text()); m != nil {
		d.Rating, _ = strconv.ParseFloat(m[1], 64)
	}

	doc.Find("#taglist div[id^=td_]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("id")
		tag := strings.ReplaceAll(strings.TrimPrefix(id, "td_"), "_", " ")
		if tag != "" {
			d.Tags = append(d.Tags, models.ParseKeyword(tag))
		}
	})

	doc.Find("#gd5 a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		onclick, _ := s.Attr("onclick")
		if m := popUpRe.FindStringSubmatch(onclick); m != nil && strings.Contains(m[1], "archiver.php") {
			d.ArchiverURL = strings.ReplaceAll(m[1], "&amp;", "&")
			return false
		}
		return true
	})

	return d, nil
}

// parseSize turns "45.67 MiB" into bytes. Unknown units give 0.
func parseSize(s string) int64 {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	mult := map[string]float64{
		"B": 1, "KiB": 1 << 10, "MiB": 1 << 20, "GiB": 1 << 30,
		"KB": 1 << 10, "MB": 1 << 20, "GB": 1 << 30,
	}[fields[1]]
	return int64(n * mult)
}
