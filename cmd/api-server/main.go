package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ehcalibre/internal/download"
	"ehcalibre/internal/ehentai"
	"ehcalibre/internal/history"
	"ehcalibre/internal/library"
	"ehcalibre/internal/logging"
	"ehcalibre/internal/supervisor"
	"ehcalibre/internal/tagdb"
	"ehcalibre/pkg/utils"
)

func main() {
	cfg, err := utils.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tags, err := tagdb.Open(ctx, cfg.TagDBPath())
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.TagDBPath()).Msg("open tag db")
	}
	defer tags.Close()
	syncer := tagdb.NewSyncer(tags, tagdb.NewGitHubUpstream(cfg.TagSync.Repo))

	lib, err := library.Open(ctx, cfg.Paths.CalibreLibraryRoot)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.CalibreDBPath()).Msg("open calibre library")
	}
	defer lib.Close()

	hist, err := history.Open(cfg.HistoryDir(), history.DefaultTTL)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.HistoryDir()).Msg("open job history")
	}
	defer hist.Close()

	eh, err := ehentai.NewClient(ehentai.Config{
		Site:      cfg.Site(),
		AuthID:    cfg.EHentai.AuthID,
		AuthHash:  cfg.EHentai.AuthHash,
		Igneous:   cfg.EHentai.Igneous,
		RateLimit: cfg.EHentai.RateLimit,
		Burst:     cfg.EHentai.Burst,
		Timeout:   cfg.EHentai.Timeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("create e-hentai client")
	}

	manager := download.NewManager(ctx, download.Config{
		Site:       cfg.Site(),
		OutputRoot: cfg.Paths.ArchiveOutput,
		Limit:      cfg.Download.Limit,
	}, eh, lib, tags, hist)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := tags.DB.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "tag_db": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"site":   cfg.Site().String(),
			"tasks":  len(manager.Tasks()),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("")
	download.NewHandler(manager, hist).RegisterRoutes(api)
	library.NewHandler(lib, syncer, tags).RegisterRoutes(api)
	tagdb.NewHandler(tags, syncer).RegisterRoutes(api)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddAPIService(supervisor.NewHTTPService(httpSrv, cfg.Server.ShutdownTimeout))
	tree.AddBackgroundService(supervisor.NewTagSyncService(syncer, cfg.TagSync.Interval))

	logging.Info().
		Str("addr", cfg.Addr()).
		Str("site", cfg.Site().String()).
		Int("limit", cfg.Download.Limit).
		Msg("api server starting")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("supervisor stopped")
	}

	logging.Info().Int("tasks", len(manager.Tasks())).Msg("waiting for running jobs")
	manager.Wait()
	logging.Info().Msg("server stopped")
}
