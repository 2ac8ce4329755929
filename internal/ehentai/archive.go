package ehentai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ehcalibre/internal/metrics"
	"ehcalibre/pkg/models"
)

var (
	ErrNoArchiver     = errors.New("gallery page has no archiver link")
	ErrArchiveRefused = errors.New("archiver refused the request")

	locationRe = regexp.MustCompile(`document\.location\s*=\s*"([^"]+)"`)
)

// DownloadArchive asks the archiver for the requested quality and downloads
// the resulting zip into memory.
func (c *Client) DownloadArchive(ctx context.Context, d *models.GalleryDetail, q models.Quality) ([]byte, error) {
	if d.ArchiverURL == "" {
		return nil, ErrNoArchiver
	}

	form := url.Values{}
	if q == models.QualityResample {
		form.Set("dltype", "res")
		form.Set("dlcheck", "Download Resample Archive")
	} else {
		form.Set("dltype", "org")
		form.Set("dlcheck", "Download Original Archive")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.ArchiverURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build archiver request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	page, err := c.pages.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request archive: %w", err)
	}

	link, err := parseArchiveLink(page)
	if err != nil {
		return nil, err
	}

	dl, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	data, err := c.archives.Do(dl)
	if err != nil {
		return nil, fmt.Errorf("download archive: %w", err)
	}
	metrics.ArchiveBytes.Add(float64(len(data)))
	return data, nil
}

// parseArchiveLink finds the hath download link on the archiver response
// and appends start=1 so the server sends the file directly.
func parseArchiveLink(page []byte) (string, error) {
	var link string
	if m := locationRe.FindSubmatch(page); m != nil {
		link = string(m[1])
	} else {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
		if err != nil {
			return "", fmt.Errorf("parse archiver page: %w", err)
		}
		link, _ = doc.Find("#continue a").First().Attr("href")
		if link == "" {
			msg := strings.TrimSpace(doc.Find("p").First().Text())
			if msg == "" {
				msg = "no download link"
			}
			return "", fmt.Errorf("%w: %s", ErrArchiveRefused, msg)
		}
	}

	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse download link %q: %w", link, err)
	}
	q := u.Query()
	q.Set("start", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
