package tagdb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ehcalibre/internal/logging"
	"ehcalibre/internal/metrics"
	"ehcalibre/pkg/models"
)

const chunkSize = 500

// Dataset is one upstream release: namespace -> raw -> translation.
type Dataset struct {
	Version    string
	Namespaces map[models.Namespace]map[string]models.TagRecord
}

// Upstream is the remote versioned source of translations.
type Upstream interface {
	LatestVersion(ctx context.Context) (string, error)
	FetchDataset(ctx context.Context, version string) (*Dataset, error)
}

type NamespaceResult struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Filtered  int `json:"filtered"`
}

type SyncResult struct {
	Version string `json:"version"`

	// Current is set when the stored version already matched upstream.
	Current bool `json:"current"`

	Inserted   int                                  `json:"inserted"`
	Updated    int                                  `json:"updated"`
	Unchanged  int                                  `json:"unchanged"`
	Namespaces map[models.Namespace]NamespaceResult `json:"namespaces,omitempty"`
}

// Syncer reconciles the Store with an Upstream. Resync calls are serialized.
type Syncer struct {
	Store    *Store
	Upstream Upstream

	mu sync.Mutex
}

func NewSyncer(store *Store, up Upstream) *Syncer {
	return &Syncer{Store: store, Upstream: up}
}

// Resync brings the cache up to the upstream version. The stored version is
// written only after every namespace transaction has committed, so an
// interrupted run is redone in full next time.
func (s *Syncer) Resync(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.resync(ctx)
	switch {
	case err != nil:
		metrics.TagSyncRuns.WithLabelValues("failed").Inc()
	case res.Current:
		metrics.TagSyncRuns.WithLabelValues("current").Inc()
	default:
		metrics.TagSyncRuns.WithLabelValues("applied").Inc()
	}
	return res, err
}

func (s *Syncer) resync(ctx context.Context) (SyncResult, error) {
	upstream, err := s.Upstream.LatestVersion(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("upstream version: %w", err)
	}
	local, err := s.Store.Version(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	if local == upstream {
		logging.Info().Str("version", local).Msg("tag db is current")
		return SyncResult{Version: local, Current: true}, nil
	}

	logging.Info().Str("local", local).Str("upstream", upstream).Msg("tag db resync started")

	ds, err := s.Upstream.FetchDataset(ctx, upstream)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch dataset %s: %w", upstream, err)
	}

	res := SyncResult{Version: upstream, Namespaces: make(map[models.Namespace]NamespaceResult, len(models.Namespaces))}
	for _, ns := range models.Namespaces {
		entries, ok := ds.Namespaces[ns]
		if !ok {
			return res, fmt.Errorf("dataset %s: namespace %q missing", upstream, ns)
		}

		nr, err := s.syncNamespace(ctx, ns, entries)
		if err != nil {
			return res, err
		}
		res.Namespaces[ns] = nr
		res.Inserted += nr.Inserted
		res.Updated += nr.Updated
		res.Unchanged += nr.Unchanged

		logging.Debug().Str("namespace", string(ns)).
			Int("inserted", nr.Inserted).Int("updated", nr.Updated).Int("unchanged", nr.Unchanged).
			Msg("namespace synced")
	}

	if err := s.Store.setVersion(ctx, upstream); err != nil {
		return res, err
	}

	logging.Info().Str("version", upstream).
		Int("inserted", res.Inserted).Int("updated", res.Updated).Int("unchanged", res.Unchanged).
		Msg("tag db resync finished")
	return res, nil
}

func (s *Syncer) syncNamespace(ctx context.Context, ns models.Namespace, entries map[string]models.TagRecord) (NamespaceResult, error) {
	var nr NamespaceResult

	raws := make([]string, 0, len(entries))
	for raw := range entries {
		if !hasLetter(raw) {
			nr.Filtered++
			continue
		}
		raws = append(raws, raw)
	}
	sort.Strings(raws)

	existing, err := s.Store.existing(ctx, ns, raws)
	if err != nil {
		return nr, err
	}

	inserts, updates, unchanged := classify(raws, entries, existing)
	if err := s.Store.apply(ctx, ns, inserts, updates); err != nil {
		return nr, fmt.Errorf("apply %s: %w", ns, err)
	}

	nr.Inserted, nr.Updated, nr.Unchanged = len(inserts), len(updates), unchanged
	metrics.TagSyncRows.WithLabelValues(string(ns), "insert").Add(float64(nr.Inserted))
	metrics.TagSyncRows.WithLabelValues(string(ns), "update").Add(float64(nr.Updated))
	metrics.TagSyncRows.WithLabelValues(string(ns), "skip").Add(float64(nr.Unchanged))
	return nr, nil
}

// classify splits candidates into rows to insert, rows to update and a count
// of rows that are already identical.
func classify(raws []string, candidates, existing map[string]models.TagRecord) (inserts, updates []models.TagRecord, unchanged int) {
	for _, raw := range raws {
		want := candidates[raw]
		want.Raw = raw
		have, ok := existing[raw]
		switch {
		case !ok:
			inserts = append(inserts, want)
		case !have.SamePayload(want):
			updates = append(updates, want)
		default:
			unchanged++
		}
	}
	return inserts, updates, unchanged
}

func hasLetter(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') {
			return true
		}
	}
	return false
}
