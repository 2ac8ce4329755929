package tagdb

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ehcalibre/internal/logging"
)

type Handler struct {
	Store  *Store
	Syncer *Syncer
}

func NewHandler(store *Store, syncer *Syncer) *Handler {
	return &Handler{Store: store, Syncer: syncer}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/tag/query", h.query)
	rg.GET("/tag/stats", h.stats)
	rg.POST("/tag/sync", h.sync)
}

type queryReq struct {
	Namespace string `json:"namespace" binding:"required"`
	RawTag    string `json:"rawTag" binding:"required"`
}

type queryResp struct {
	TranslatedName *string `json:"translatedName,omitempty"`
}

func (h *Handler) query(c *gin.Context) {
	var req queryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "namespace and rawTag required"})
		return
	}

	name, ok, err := h.Store.Translate(c.Request.Context(), req.Namespace, req.RawTag)
	if err != nil {
		logging.Ctx(c.Request.Context()).Error().Err(err).Msg("tag query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "tag query failed"})
		return
	}

	var resp queryResp
	if ok {
		resp.TranslatedName = &name
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) stats(c *gin.Context) {
	st, err := h.Store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) sync(c *gin.Context) {
	res, err := h.Syncer.Resync(c.Request.Context())
	if err != nil {
		logging.Ctx(c.Request.Context()).Error().Err(err).Msg("tag resync failed")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}
