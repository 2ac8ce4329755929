package library

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ehcalibre/internal/logging"
	"ehcalibre/internal/tagdb"
	"ehcalibre/pkg/models"
)

// Resyncer refreshes the translation cache.
type Resyncer interface {
	Resync(ctx context.Context) (tagdb.SyncResult, error)
}

// Snapshotter dumps the translation cache.
type Snapshotter interface {
	SnapshotAll(ctx context.Context) (map[models.Namespace]map[string]string, error)
}

type Handler struct {
	Library *Library
	Syncer  Resyncer
	Tags    Snapshotter
}

func NewHandler(lib *Library, syncer Resyncer, tags Snapshotter) *Handler {
	return &Handler{Library: lib, Syncer: syncer, Tags: tags}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/calibre/metadata/update", h.updateMetadata)
	rg.GET("/calibre/books/:id", h.getBook)
}

type updateResp struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Renamed TranslateResult `json:"renamed"`
}

// updateMetadata resyncs the cache, then translates existing catalog items.
func (h *Handler) updateMetadata(c *gin.Context) {
	ctx := c.Request.Context()
	log := logging.Ctx(ctx)

	sync, err := h.Syncer.Resync(ctx)
	if err != nil {
		log.Error().Err(err).Msg("tag resync failed")
		c.JSON(http.StatusInternalServerError, updateResp{Message: "tag resync failed: " + err.Error()})
		return
	}

	snap, err := h.Tags.SnapshotAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("tag snapshot failed")
		c.JSON(http.StatusInternalServerError, updateResp{Message: "tag snapshot failed: " + err.Error()})
		return
	}

	res, err := h.Library.ApplyTranslations(ctx, snap)
	if err != nil {
		log.Error().Err(err).Msg("apply translations failed")
		c.JSON(http.StatusInternalServerError, updateResp{Message: "apply translations failed: " + err.Error(), Renamed: res})
		return
	}

	log.Info().
		Str("version", sync.Version).
		Int("authors", res.Authors).
		Int("publishers", res.Publishers).
		Int("tags", res.Tags).
		Msg("catalog metadata translated")
	c.JSON(http.StatusOK, updateResp{
		Success: true,
		Message: fmt.Sprintf("tag db %s, renamed %d items", sync.Version, res.Total()),
		Renamed: res,
	})
}

func (h *Handler) getBook(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid book id"})
		return
	}

	b, err := h.Library.Book(c.Request.Context(), id)
	if errors.Is(err, ErrBookNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"msg": "book not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
		return
	}
	c.JSON(http.StatusOK, b)
}
