package supervisor

import (
	"context"
	"time"

	"ehcalibre/internal/logging"
	"ehcalibre/internal/tagdb"
)

type Resyncer interface {
	Resync(ctx context.Context) (tagdb.SyncResult, error)
}

// TagSyncService resyncs the tag cache once at start and then every
// interval. A zero interval means start-up only. Failed runs are logged and
// retried on the next tick rather than restarting the service.
type TagSyncService struct {
	syncer   Resyncer
	interval time.Duration
}

func NewTagSyncService(syncer Resyncer, interval time.Duration) *TagSyncService {
	return &TagSyncService{syncer: syncer, interval: interval}
}

func (s *TagSyncService) Serve(ctx context.Context) error {
	s.runOnce(ctx)

	if s.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *TagSyncService) runOnce(ctx context.Context) {
	log := logging.With().Str("component", "tag-sync").Logger()
	res, err := s.syncer.Resync(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("tag resync failed")
		}
		return
	}
	if res.Current {
		log.Debug().Str("version", res.Version).Msg("tag db current")
		return
	}
	log.Info().
		Str("version", res.Version).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("unchanged", res.Unchanged).
		Msg("tag db resynced")
}

func (s *TagSyncService) String() string { return "tag-sync" }
