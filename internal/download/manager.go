// Package download runs gallery jobs: download, import and metadata replace.
// Submission is synchronous and only validates and reserves the gallery key;
// the pipeline itself runs on its own goroutine once a slot is free.
package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"ehcalibre/internal/archive"
	"ehcalibre/internal/ehentai"
	"ehcalibre/internal/history"
	"ehcalibre/internal/library"
	"ehcalibre/internal/logging"
	"ehcalibre/internal/metrics"
	"ehcalibre/pkg/models"
)

// Fetcher talks to the gallery site.
type Fetcher interface {
	FetchDetail(ctx context.Context, id models.GalleryIdentity) (*models.GalleryDetail, error)
	FetchMetadata(ctx context.Context, id models.GalleryIdentity) (*models.GalleryMetadata, error)
	DownloadArchive(ctx context.Context, d *models.GalleryDetail, q models.Quality) ([]byte, error)
}

// Catalog is the subset of the Calibre library the pipelines write to.
type Catalog interface {
	AddRecord(ctx context.Context, e models.CatalogEntry) (int64, error)
	ReplaceRecord(ctx context.Context, bookID int64, e models.CatalogEntry) error
	FindByIdentifier(ctx context.Context, label, value string) (int64, bool, error)
}

// Recorder stores terminal job outcomes.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

type Config struct {
	Site       models.Site
	OutputRoot string
	// Limit is the number of pipelines allowed to run at once.
	Limit int
}

type Manager struct {
	cfg     Config
	fetcher Fetcher
	catalog Catalog
	tags    library.Translator
	history Recorder

	jobs  *ActiveJobSet
	slots *semaphore.Weighted

	// ctx lives as long as the process; jobs are not cancelled individually.
	ctx context.Context
	wg  sync.WaitGroup
}

// NewManager builds a manager whose jobs run under ctx. hist may be nil.
func NewManager(ctx context.Context, cfg Config, fetcher Fetcher, catalog Catalog, tags library.Translator, hist Recorder) *Manager {
	if cfg.Limit < 1 {
		cfg.Limit = 1
	}
	return &Manager{
		cfg:     cfg,
		fetcher: fetcher,
		catalog: catalog,
		tags:    tags,
		history: hist,
		jobs:    NewActiveJobSet(),
		slots:   semaphore.NewWeighted(int64(cfg.Limit)),
		ctx:     ctx,
	}
}

// SubmitDownload accepts a download job for rawURL and returns its key.
func (m *Manager) SubmitDownload(rawURL string, q models.Quality) (string, error) {
	id, err := ehentai.Normalize(rawURL, m.cfg.Site)
	if err != nil {
		return "", invalid(err)
	}
	return m.submit(KindDownload, id, func(ctx context.Context, j *job) error {
		return m.download(ctx, j, q)
	})
}

// SubmitImport accepts an import of the local archive at path for rawURL.
func (m *Manager) SubmitImport(rawURL, path string) (string, error) {
	id, err := ehentai.Normalize(rawURL, m.cfg.Site)
	if err != nil {
		return "", invalid(err)
	}
	if err := archive.ValidateImport(path); err != nil {
		return "", invalid(err)
	}
	return m.submit(KindImport, id, func(ctx context.Context, j *job) error {
		return m.importArchive(ctx, j, path)
	})
}

// SubmitReplace refreshes the catalog metadata of an already registered gallery.
func (m *Manager) SubmitReplace(rawURL string) (string, error) {
	id, err := ehentai.Normalize(rawURL, m.cfg.Site)
	if err != nil {
		return "", invalid(err)
	}
	return m.submit(KindReplace, id, m.replace)
}

type pipeline func(ctx context.Context, j *job) error

type job struct {
	id   models.GalleryIdentity
	key  string
	kind Kind
	log  zerolog.Logger
}

func (j *job) fail(stage Stage, err error) error {
	return &JobError{Key: j.key, Kind: j.kind, Stage: stage, Err: err}
}

func (m *Manager) submit(kind Kind, id models.GalleryIdentity, run pipeline) (string, error) {
	key := id.Key()
	if !m.jobs.TryAdd(key) {
		metrics.JobsSubmitted.WithLabelValues(string(kind), "duplicate").Inc()
		return key, fmt.Errorf("%w: %s", ErrAlreadyInProgress, key)
	}
	metrics.JobsSubmitted.WithLabelValues(string(kind), "accepted").Inc()
	metrics.JobsActive.Inc()

	j := &job{id: id, key: key, kind: kind, log: logging.Gallery(key)}
	j.log.Info().Str("kind", string(kind)).Msg("job accepted")

	m.wg.Add(1)
	go m.run(j, run)
	return key, nil
}

// run owns the job key and the slot; both are released on every exit path.
func (m *Manager) run(j *job, run pipeline) {
	started := time.Now()
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = j.fail(StagePanic, fmt.Errorf("%v", r))
		}
		m.jobs.Remove(j.key)
		metrics.JobsActive.Dec()
		m.finish(j, started, err)
		m.wg.Done()
	}()

	if err = m.slots.Acquire(m.ctx, 1); err != nil {
		err = j.fail(StageQueue, err)
		return
	}
	defer m.slots.Release(1)
	metrics.JobSlotsInUse.Inc()
	defer metrics.JobSlotsInUse.Dec()

	err = run(m.ctx, j)
}

func (m *Manager) finish(j *job, started time.Time, err error) {
	var stage Stage
	var je *JobError
	if errors.As(err, &je) {
		stage = je.Stage
	}
	metrics.ObserveJob(string(j.kind), string(stage), err, started)

	if err != nil {
		j.log.Error().Err(err).Str("kind", string(j.kind)).Str("stage", string(stage)).Msg("job failed")
	} else {
		j.log.Info().Str("kind", string(j.kind)).Dur("took", time.Since(started)).Msg("job finished")
	}

	if m.history == nil {
		return
	}
	e := history.Entry{
		Key:        j.key,
		Kind:       string(j.kind),
		Stage:      string(stage),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	if herr := m.history.Record(context.Background(), e); herr != nil {
		j.log.Warn().Err(herr).Msg("record job history")
	}
}

// Tasks returns the keys of accepted, unfinished jobs.
func (m *Manager) Tasks() []string {
	return m.jobs.Snapshot()
}

// Wait blocks until every accepted job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
