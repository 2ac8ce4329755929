package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"ehcalibre/pkg/models"
)

const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	EHentai  EHentaiConfig  `koanf:"ehentai"`
	Paths    PathsConfig    `koanf:"paths"`
	Download DownloadConfig `koanf:"download"`
	TagSync  TagSyncConfig  `koanf:"tag_sync"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=0"`
}

type EHentaiConfig struct {
	Site      string        `koanf:"site" validate:"oneof=e-hentai.org exhentai.org eh ex"`
	AuthID    string        `koanf:"auth_id"`
	AuthHash  string        `koanf:"auth_hash"`
	Igneous   string        `koanf:"igneous"`
	RateLimit float64       `koanf:"rate_limit" validate:"gt=0"`
	Burst     int           `koanf:"burst" validate:"min=1"`
	Timeout   time.Duration `koanf:"timeout" validate:"min=0"`
}

type PathsConfig struct {
	ArchiveOutput      string `koanf:"archive_output" validate:"required"`
	CalibreLibraryRoot string `koanf:"calibre_library_root" validate:"required"`
	TagDBRoot          string `koanf:"tag_db_root" validate:"required"`
}

type DownloadConfig struct {
	Limit int `koanf:"limit" validate:"min=1,max=64"`
}

type TagSyncConfig struct {
	// Interval of zero disables the periodic resync; a resync still runs at startup.
	Interval time.Duration `koanf:"interval" validate:"min=0"`
	Repo     string        `koanf:"repo" validate:"required"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 3000, ShutdownTimeout: 15 * time.Second},
		EHentai: EHentaiConfig{
			Site:      "e-hentai.org",
			RateLimit: 1,
			Burst:     3,
			Timeout:   60 * time.Second,
		},
		Paths: PathsConfig{
			ArchiveOutput:      "./output",
			CalibreLibraryRoot: "./library",
			TagDBRoot:          "./data",
		},
		Download: DownloadConfig{Limit: 5},
		TagSync:  TagSyncConfig{Interval: 24 * time.Hour, Repo: "EhTagTranslation/Database"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load layers defaults, an optional YAML file and the environment, in that order.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"port":                 "server.port",
	"shutdown_timeout":     "server.shutdown_timeout",
	"eh_site":              "ehentai.site",
	"eh_auth_id":           "ehentai.auth_id",
	"eh_auth_hash":         "ehentai.auth_hash",
	"eh_auth_igneous":      "ehentai.igneous",
	"eh_rate_limit":        "ehentai.rate_limit",
	"eh_burst":             "ehentai.burst",
	"eh_timeout":           "ehentai.timeout",
	"archive_output":       "paths.archive_output",
	"calibre_library_root": "paths.calibre_library_root",
	"tag_db_root":          "paths.tag_db_root",
	"limit":                "download.limit",
	"tag_sync_interval":    "tag_sync.interval",
	"tag_sync_repo":        "tag_sync.repo",
	"log_level":            "logging.level",
	"log_format":           "logging.format",
}

// envTransformFunc maps known variables onto config paths and drops the rest.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	return validate.Struct(c)
}

// Site returns the configured site variant. Validate guarantees it parses.
func (c *Config) Site() models.Site {
	s, _ := models.ParseSite(c.EHentai.Site)
	return s
}

func (c *Config) TagDBPath() string {
	return filepath.Join(c.Paths.TagDBRoot, "eh_tag.db")
}

func (c *Config) CalibreDBPath() string {
	return filepath.Join(c.Paths.CalibreLibraryRoot, "metadata.db")
}

func (c *Config) HistoryDir() string {
	return filepath.Join(c.Paths.ArchiveOutput, ".history")
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
