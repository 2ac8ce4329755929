// Package ehentai fetches galleries from e-hentai.org / exhentai.org: the
// gallery page, the metadata API and the archiver download.
package ehentai

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"ehcalibre/internal/fetch"
	"ehcalibre/pkg/models"
)

const defaultAPIURL = "https://api.e-hentai.org/api.php"

type Config struct {
	Site      models.Site
	AuthID    string
	AuthHash  string
	Igneous   string
	RateLimit float64 // requests per second
	Burst     int
	Timeout   time.Duration

	// BaseURL and APIURL override the site endpoints.
	BaseURL string
	APIURL  string
}

// Client talks to one site variant. Page and API requests share a rate
// limiter; archive downloads go through their own breaker without a timeout.
type Client struct {
	Site    models.Site
	BaseURL string
	APIURL  string

	pages    *fetch.Client
	archives *fetch.Client
}

func NewClient(cfg Config) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	base := cfg.BaseURL
	if base == "" {
		base = "https://" + cfg.Site.Host()
	}
	api := cfg.APIURL
	if api == "" {
		api = defaultAPIURL
	}

	for _, u := range []string{"https://e-hentai.org", "https://exhentai.org", base, api} {
		setAuthCookies(jar, u, cfg)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	pages := fetch.New("ehentai", &http.Client{Timeout: cfg.Timeout, Jar: jar}, limiter)
	archives := fetch.New("ehentai-archive", &http.Client{Jar: jar}, limiter)

	return &Client{
		Site:     cfg.Site,
		BaseURL:  strings.TrimRight(base, "/"),
		APIURL:   api,
		pages:    pages,
		archives: archives,
	}, nil
}

func setAuthCookies(jar http.CookieJar, raw string, cfg Config) {
	u, err := url.Parse(raw)
	if err != nil {
		return
	}
	// nw=1 skips the content warning interstitial
	cookies := []*http.Cookie{{Name: "nw", Value: "1", Path: "/"}}
	if cfg.AuthID != "" {
		cookies = append(cookies, &http.Cookie{Name: "ipb_member_id", Value: cfg.AuthID, Path: "/"})
	}
	if cfg.AuthHash != "" {
		cookies = append(cookies, &http.Cookie{Name: "ipb_pass_hash", Value: cfg.AuthHash, Path: "/"})
	}
	if cfg.Igneous != "" {
		cookies = append(cookies, &http.Cookie{Name: "igneous", Value: cfg.Igneous, Path: "/"})
	}
	jar.SetCookies(u, cookies)
}

func (c *Client) galleryURL(id models.GalleryIdentity) string {
	return fmt.Sprintf("%s/g/%d/%s/", c.BaseURL, id.GID, id.Token)
}
