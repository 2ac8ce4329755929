package download

import (
	"context"

	"ehcalibre/internal/archive"
	"ehcalibre/internal/library"
	"ehcalibre/pkg/models"
)

// download: fetch detail, write archive unless present, sidecar, register.
func (m *Manager) download(ctx context.Context, j *job, q models.Quality) error {
	detail, err := m.fetcher.FetchDetail(ctx, j.id)
	if err != nil {
		return j.fail(StageFetchDetail, err)
	}

	p := archive.Layout(m.cfg.OutputRoot, j.id)
	if archive.Exists(p.Archive) {
		j.log.Info().Str("path", p.Archive).Msg("archive present, skipping download")
	} else {
		data, err := m.fetcher.DownloadArchive(ctx, detail, q)
		if err != nil {
			return j.fail(StageArchive, err)
		}
		if err := archive.Write(p, data); err != nil {
			return j.fail(StageArchive, err)
		}
		j.log.Info().Int("bytes", len(data)).Str("quality", string(q)).Msg("archive written")
	}

	if err := archive.WriteSidecar(p.Sidecar(archive.DetailSidecar), detail); err != nil {
		return j.fail(StageSidecar, err)
	}
	return m.register(ctx, j, detail, p)
}

// importArchive: fetch metadata, copy the local archive unless present, sidecar, register.
func (m *Manager) importArchive(ctx context.Context, j *job, src string) error {
	meta, err := m.fetcher.FetchMetadata(ctx, j.id)
	if err != nil {
		return j.fail(StageFetchMetadata, err)
	}

	p := archive.Layout(m.cfg.OutputRoot, j.id)
	if archive.Exists(p.Archive) {
		j.log.Info().Str("path", p.Archive).Msg("archive present, skipping copy")
	} else {
		if err := archive.Copy(src, p); err != nil {
			return j.fail(StageCopy, err)
		}
		j.log.Info().Str("src", src).Msg("archive copied")
	}

	if err := archive.WriteSidecar(p.Sidecar(archive.MetadataSidecar), meta); err != nil {
		return j.fail(StageSidecar, err)
	}
	return m.register(ctx, j, meta, p)
}

// register extracts the cover, maps the gallery and adds it to the catalog.
// The catalog write is always the last step.
func (m *Manager) register(ctx context.Context, j *job, g models.Gallery, p archive.Paths) error {
	cover, err := archive.ExtractCover(p.Archive, p.Dir)
	if err != nil {
		return j.fail(StageCover, err)
	}
	if cover == nil {
		j.log.Warn().Msg("no cover image in archive")
	}

	entry, err := library.MapEntry(ctx, g, m.cfg.Site, m.tags, p.Archive)
	if err != nil {
		return j.fail(StageMap, err)
	}
	if cover != nil {
		entry.Cover = cover.Path
	}

	bookID, err := m.catalog.AddRecord(ctx, entry)
	if err != nil {
		return j.fail(StageCatalog, err)
	}
	j.log.Info().Int64("book", bookID).Str("title", entry.Title).Msg("added to calibre")
	return nil
}

// replace rewrites the catalog metadata of a gallery without touching files.
func (m *Manager) replace(ctx context.Context, j *job) error {
	meta, err := m.fetcher.FetchMetadata(ctx, j.id)
	if err != nil {
		return j.fail(StageFetchMetadata, err)
	}

	ident := library.ExternalIdentifier(meta.Info(), m.cfg.Site)
	bookID, ok, err := m.catalog.FindByIdentifier(ctx, ident.Label, ident.Value)
	if err != nil {
		return j.fail(StageFind, err)
	}
	if !ok {
		return j.fail(StageFind, ErrNotInCatalog)
	}

	entry, err := library.MapEntry(ctx, meta, m.cfg.Site, m.tags, "")
	if err != nil {
		return j.fail(StageMap, err)
	}
	if err := m.catalog.ReplaceRecord(ctx, bookID, entry); err != nil {
		return j.fail(StageCatalog, err)
	}
	j.log.Info().Int64("book", bookID).Msg("catalog metadata replaced")
	return nil
}
