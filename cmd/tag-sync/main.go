package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ehcalibre/internal/library"
	"ehcalibre/internal/logging"
	"ehcalibre/internal/tagdb"
	"ehcalibre/pkg/utils"
)

func main() {
	apply := flag.Bool("apply", false, "translate existing Calibre authors, publishers and tags after the resync")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall time limit")
	flag.Parse()

	cfg, err := utils.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	tags, err := tagdb.Open(ctx, cfg.TagDBPath())
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.TagDBPath()).Msg("open tag db")
	}
	defer tags.Close()

	res, err := tagdb.NewSyncer(tags, tagdb.NewGitHubUpstream(cfg.TagSync.Repo)).Resync(ctx)
	if err != nil {
		logging.Fatal().Err(err).Msg("tag resync failed")
	}
	logging.Info().
		Str("version", res.Version).
		Bool("current", res.Current).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("unchanged", res.Unchanged).
		Msg("tag db synced")

	if !*apply {
		return
	}

	lib, err := library.Open(ctx, cfg.Paths.CalibreLibraryRoot)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.CalibreDBPath()).Msg("open calibre library")
	}
	defer lib.Close()

	snap, err := tags.SnapshotAll(ctx)
	if err != nil {
		logging.Fatal().Err(err).Msg("snapshot tag db")
	}
	renamed, err := lib.ApplyTranslations(ctx, snap)
	if err != nil {
		logging.Fatal().Err(err).Msg("apply translations")
	}
	logging.Info().
		Int("authors", renamed.Authors).
		Int("publishers", renamed.Publishers).
		Int("tags", renamed.Tags).
		Msg("calibre metadata translated")
}
