// Package http exposes sessions, scenes, preferences and ending statistics
// over a gin router.
package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"ambient-novel/internal/audio/output"
	"ambient-novel/internal/delivery/http/middleware"
	"ambient-novel/internal/delivery/websocket"
	"ambient-novel/internal/domain"
	"ambient-novel/internal/playthrough"
	"ambient-novel/internal/preferences"
	"ambient-novel/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SceneLookup resolves scenes by id. *storygraph.Store satisfies it.
type SceneLookup interface {
	Scene(id string) (*domain.Scene, error)
}

// Deps of a Handler.
type Deps struct {
	Sessions     *session.Manager
	Scenes       SceneLookup
	Playthroughs playthrough.Repository
	Preferences  preferences.Store
	Hub          *websocket.Hub
	// StreamChunk is the pacing interval of the WAV ambient stream.
	StreamChunk time.Duration
	Logger      *zap.Logger
}

// Handler представляет HTTP обработчик
type Handler struct {
	sessions    *session.Manager
	scenes      SceneLookup
	endings     playthrough.Repository
	prefs       preferences.Store
	hub         *websocket.Hub
	streamChunk time.Duration
	logger      *zap.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		sessions:    d.Sessions,
		scenes:      d.Scenes,
		endings:     d.Playthroughs,
		prefs:       d.Preferences,
		hub:         d.Hub,
		streamChunk: d.StreamChunk,
		logger:      d.Logger.Named("HTTPHandler"),
	}
}

// RegisterRoutes регистрирует маршруты API
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api")

	sessions := api.Group("/sessions")
	sessions.POST("", h.createSession)
	sessions.GET("/:id", h.getSession)
	sessions.DELETE("/:id", h.deleteSession)
	sessions.POST("/:id/advance", h.advance)
	sessions.POST("/:id/choices", h.choose)
	sessions.POST("/:id/restart", h.restart)
	sessions.PUT("/:id/mute", h.setMuted)
	sessions.PUT("/:id/narration", h.setSessionNarration)
	sessions.GET("/:id/ws", h.connect)
	sessions.GET("/:id/ambient", h.streamAmbient)

	api.GET("/scenes/:id", h.getScene)
	api.GET("/endings", h.endingStats)
	api.GET("/endings/recent", h.recentEndings)

	api.GET("/preferences/narration", h.getNarrationPreference)
	api.PUT("/preferences/narration", h.putNarrationPreference)
}

type chooseRequest struct {
	NextScene string `json:"nextScene" binding:"required"`
}

type muteRequest struct {
	Muted *bool `json:"muted" binding:"required"`
}

type narrationRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type narrationResponse struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) createSession(c *gin.Context) {
	s, err := h.sessions.Create(c.Request.Context(), middleware.ClientID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	snap, err := s.Snapshot(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.Header("Location", "/api/sessions/"+s.ID())
	c.JSON(http.StatusCreated, snap)
}

func (h *Handler) getSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := s.Snapshot(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) advance(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	respond(c, s.Advance)
}

func (h *Handler) choose(c *gin.Context) {
	var req chooseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := s.Choose(c.Request.Context(), req.NextScene)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) restart(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	respond(c, s.Restart)
}

func (h *Handler) setMuted(c *gin.Context) {
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := s.SetMuted(c.Request.Context(), *req.Muted)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) setSessionNarration(c *gin.Context) {
	var req narrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := s.SetNarration(c.Request.Context(), *req.Enabled)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) connect(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.hub.Serve(c.Writer, c.Request, s)
}

// streamAmbient sends the session's soundscape as an endless WAV. Each read
// consumes engine output, so one listener per session is expected.
func (h *Handler) streamAmbient(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	e := s.Engine()
	c.Header("Content-Type", "audio/wav")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := output.StreamWAV(c.Request.Context(), c.Writer, e, e.SampleRate(), h.streamChunk); err != nil {
		h.logger.Info("Ambient stream ended", zap.String("sessionID", s.ID()), zap.Error(err))
	}
}

func (h *Handler) getScene(c *gin.Context) {
	sc, err := h.scenes.Scene(c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (h *Handler) endingStats(c *gin.Context) {
	stats, err := h.endings.Stats(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"endings": stats})
}

func (h *Handler) recentEndings(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	records, err := h.endings.Recent(c.Request.Context(), limit)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"playthroughs": records})
}

func (h *Handler) getNarrationPreference(c *gin.Context) {
	id, ok := requireClientID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, narrationResponse{Enabled: h.prefs.Narration(c.Request.Context(), id)})
}

func (h *Handler) putNarrationPreference(c *gin.Context) {
	id, ok := requireClientID(c)
	if !ok {
		return
	}
	var req narrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.prefs.SetNarration(c.Request.Context(), id, *req.Enabled); err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{
			Code: ErrCodeUnavailable, Message: "Preference could not be saved",
		})
		return
	}
	c.JSON(http.StatusOK, narrationResponse{Enabled: *req.Enabled})
}

func requireClientID(c *gin.Context) (string, bool) {
	id := middleware.ClientID(c)
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Code: ErrCodeBadRequest, Message: middleware.ClientIDHeader + " header is required",
		})
		return "", false
	}
	return id, true
}

func respond(c *gin.Context, op func(ctx context.Context) (session.Snapshot, error)) {
	snap, err := op(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
