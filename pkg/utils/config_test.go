package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ehcalibre/pkg/models"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Download.Limit != 5 {
		t.Errorf("limit = %d, want 5", cfg.Download.Limit)
	}
	if cfg.Site() != models.SiteEHentai {
		t.Errorf("site = %v", cfg.Site())
	}
	if cfg.TagSync.Repo != "EhTagTranslation/Database" {
		t.Errorf("repo = %q", cfg.TagSync.Repo)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EH_SITE", "exhentai.org")
	t.Setenv("PORT", "8081")
	t.Setenv("LIMIT", "2")
	t.Setenv("EH_AUTH_ID", "42")
	t.Setenv("TAG_SYNC_INTERVAL", "90m")
	t.Setenv("CALIBRE_LIBRARY_ROOT", "/srv/calibre")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Site() != models.SiteExHentai {
		t.Errorf("site = %v", cfg.Site())
	}
	if cfg.Server.Port != 8081 || cfg.Addr() != ":8081" {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Download.Limit != 2 {
		t.Errorf("limit = %d", cfg.Download.Limit)
	}
	if cfg.EHentai.AuthID != "42" {
		t.Errorf("auth id = %q", cfg.EHentai.AuthID)
	}
	if cfg.TagSync.Interval != 90*time.Minute {
		t.Errorf("interval = %v", cfg.TagSync.Interval)
	}
	if cfg.CalibreDBPath() != filepath.Join("/srv/calibre", "metadata.db") {
		t.Errorf("calibre db = %q", cfg.CalibreDBPath())
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("download:\n  limit: 3\nlogging:\n  format: console\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Download.Limit != 3 || cfg.Logging.Format != "console" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LIMIT", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for LIMIT=0")
	}
}

func TestLoadRejectsUnknownSite(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EH_SITE", "example.org")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for unknown site")
	}
}
