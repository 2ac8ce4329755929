package download

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ehcalibre/internal/history"
	"ehcalibre/internal/logging"
	"ehcalibre/pkg/models"
)

// HistoryLister reads finished jobs, newest first.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

type Handler struct {
	Manager *Manager
	History HistoryLister
}

func NewHandler(m *Manager, hist HistoryLister) *Handler {
	return &Handler{Manager: m, History: hist}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/download", h.download)
	rg.POST("/import", h.importArchive)
	rg.GET("/tasks", h.tasks)
	rg.GET("/tasks/history", h.history)
	rg.POST("/calibre/metadata/replace", h.replace)
}

// downloadReq accepts the archive flavour under either spelling; the
// userscript sends download_type.
type downloadReq struct {
	URL          string `json:"url" binding:"required"`
	DownloadType string `json:"downloadType"`
	LegacyType   string `json:"download_type"`
}

func (r downloadReq) quality() (models.Quality, error) {
	v := r.DownloadType
	switch {
	case v == "" && r.LegacyType == "":
		return "", errors.New("downloadType required")
	case v == "":
		v = r.LegacyType
	case r.LegacyType != "" && !strings.EqualFold(strings.TrimSpace(r.LegacyType), strings.TrimSpace(v)):
		return "", errors.New("downloadType and download_type disagree")
	}
	return models.ParseQuality(v)
}

type importReq struct {
	URL  string `json:"url" binding:"required"`
	Path string `json:"path" binding:"required"`
}

type replaceReq struct {
	URL string `json:"url" binding:"required"`
}

type tasksResp struct {
	Count int      `json:"count"`
	Tasks []string `json:"tasks"`
}

type replaceResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// submitStatus maps a submission error to its HTTP status.
func submitStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) download(c *gin.Context) {
	var req downloadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "url required"})
		return
	}

	q, err := req.quality()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		return
	}

	if _, err = h.Manager.SubmitDownload(req.URL, q); err != nil {
		logging.Ctx(c.Request.Context()).Warn().Err(err).Str("url", req.URL).Msg("download rejected")
		c.JSON(submitStatus(err), gin.H{"msg": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *Handler) importArchive(c *gin.Context) {
	var req importReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "url and path required"})
		return
	}

	if _, err := h.Manager.SubmitImport(req.URL, req.Path); err != nil {
		logging.Ctx(c.Request.Context()).Warn().Err(err).Str("url", req.URL).Str("path", req.Path).Msg("import rejected")
		c.JSON(submitStatus(err), gin.H{"msg": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *Handler) tasks(c *gin.Context) {
	tasks := h.Manager.Tasks()
	c.JSON(http.StatusOK, tasksResp{Count: len(tasks), Tasks: tasks})
}

func (h *Handler) history(c *gin.Context) {
	if h.History == nil {
		c.JSON(http.StatusOK, gin.H{"count": 0, "entries": []history.Entry{}})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid limit"})
			return
		}
		limit = n
	}

	entries, err := h.History.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(entries), "entries": entries})
}

func (h *Handler) replace(c *gin.Context) {
	var req replaceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, replaceResp{Message: "url required"})
		return
	}

	key, err := h.Manager.SubmitReplace(req.URL)
	if err != nil {
		c.JSON(submitStatus(err), replaceResp{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, replaceResp{Success: true, Message: "metadata replace started for " + key})
}
