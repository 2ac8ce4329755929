package tagdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"ehcalibre/internal/fetch"
	"ehcalibre/pkg/models"
)

const (
	DefaultRepo       = "EhTagTranslation/Database"
	defaultAPIBase    = "https://api.github.com"
	defaultGitHubBase = "https://github.com"
)

// GitHubUpstream reads release tags and the db.text.json release asset of
// the EhTagTranslation database repository.
type GitHubUpstream struct {
	Repo       string
	APIBase    string
	GitHubBase string
	Client     *fetch.Client
}

func NewGitHubUpstream(repo string) *GitHubUpstream {
	if repo == "" {
		repo = DefaultRepo
	}
	return &GitHubUpstream{
		Repo:       repo,
		APIBase:    defaultAPIBase,
		GitHubBase: defaultGitHubBase,
		Client:     fetch.New("github", &http.Client{Timeout: 2 * time.Minute}, nil),
	}
}

type githubTag struct {
	Name string `json:"name"`
}

// LatestVersion returns the newest tag name, first in the tags listing.
func (g *GitHubUpstream) LatestVersion(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/tags", g.APIBase, g.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	body, err := g.Client.Do(req)
	if err != nil {
		return "", err
	}

	var tags []githubTag
	if err := json.Unmarshal(body, &tags); err != nil {
		return "", fmt.Errorf("decode tags: %w", err)
	}
	if len(tags) == 0 || tags[0].Name == "" {
		return "", errors.New("no tags found for " + g.Repo)
	}
	return tags[0].Name, nil
}

type datasetDoc struct {
	Data []struct {
		Namespace string `json:"namespace"`
		Data      map[string]struct {
			Name  string `json:"name"`
			Intro string `json:"intro"`
			Links string `json:"links"`
		} `json:"data"`
	} `json:"data"`
}

// FetchDataset downloads the text flavour of the dataset for version.
// Namespaces outside the cached set are dropped.
func (g *GitHubUpstream) FetchDataset(ctx context.Context, version string) (*Dataset, error) {
	url := fmt.Sprintf("%s/%s/releases/download/%s/db.text.json", g.GitHubBase, g.Repo, version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	body, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	return decodeDataset(version, body)
}

func decodeDataset(version string, body []byte) (*Dataset, error) {
	var doc datasetDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	ds := &Dataset{Version: version, Namespaces: make(map[models.Namespace]map[string]models.TagRecord)}
	for _, n := range doc.Data {
		ns, ok := models.ParseNamespace(n.Namespace)
		if !ok {
			continue
		}
		m := make(map[string]models.TagRecord, len(n.Data))
		for raw, d := range n.Data {
			m[raw] = models.TagRecord{Raw: raw, Name: d.Name, Intro: d.Intro, Links: d.Links}
		}
		ds.Namespaces[ns] = m
	}
	return ds, nil
}
