package ehentai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"ehcalibre/pkg/models"
)

type gdataRequest struct {
	Method    string  `json:"method"`
	GIDList   [][]any `json:"gidlist"`
	Namespace int     `json:"namespace"`
}

type gdataResponse struct {
	GMetadata []struct {
		GID         int64    `json:"gid"`
		Token       string   `json:"token"`
		Error       string   `json:"error"`
		ArchiverKey string   `json:"archiver_key"`
		Title       string   `json:"title"`
		TitleJpn    string   `json:"title_jpn"`
		Category    string   `json:"category"`
		Thumb       string   `json:"thumb"`
		Uploader    string   `json:"uploader"`
		Posted      string   `json:"posted"`
		FileCount   string   `json:"filecount"`
		FileSize    int64    `json:"filesize"`
		Expunged    bool     `json:"expunged"`
		Rating      string   `json:"rating"`
		Tags        []string `json:"tags"`
	} `json:"gmetadata"`
}

// FetchMetadata calls the gdata API for a single gallery.
func (c *Client) FetchMetadata(ctx context.Context, id models.GalleryIdentity) (*models.GalleryMetadata, error) {
	payload, err := json.Marshal(gdataRequest{
		Method:    "gdata",
		GIDList:   [][]any{{id.GID, id.Token}},
		Namespace: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal gdata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.pages.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gdata: %w", err)
	}
	return parseMetadata(body)
}

func parseMetadata(body []byte) (*models.GalleryMetadata, error) {
	var resp gdataResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode gdata: %w", err)
	}
	if len(resp.GMetadata) == 0 {
		return nil, errors.New("gdata: empty response")
	}
	g := resp.GMetadata[0]
	if g.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrGalleryUnavailable, g.Error)
	}

	m := &models.GalleryMetadata{ArchiverKey: g.ArchiverKey, Thumb: g.Thumb, Expunged: g.Expunged}
	m.GID, m.Token = g.GID, g.Token
	m.Title, m.TitleJpn = g.Title, g.TitleJpn
	m.Category, m.Uploader = g.Category, g.Uploader
	m.FileSize = g.FileSize
	m.FileCount, _ = strconv.Atoi(g.FileCount)
	m.Rating, _ = strconv.ParseFloat(g.Rating, 64)
	if sec, err := strconv.ParseInt(g.Posted, 10, 64); err == nil {
		m.Posted = time.Unix(sec, 0).UTC()
	}
	for _, t := range g.Tags {
		m.Tags = append(m.Tags, models.ParseKeyword(t))
	}
	return m, nil
}
