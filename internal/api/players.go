package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/models"
	"github.com/stwalsh4118/marquee/internal/playback"
	"github.com/stwalsh4118/marquee/internal/player"
	"github.com/stwalsh4118/marquee/internal/quality"
)

const defaultLikeTimeout = 10 * time.Second

// playerManager defines the interface required by PlayerHandler
type playerManager interface {
	Open(contentID string, opts player.OpenOptions) (*player.Session, bool, error)
	Get(contentID string) (*player.Session, bool)
	Close(contentID string) error
	List() []*player.Session
}

// PlayerResponse describes an open player
type PlayerResponse struct {
	ContentID  string          `json:"content_id"`
	CreatedAt  time.Time       `json:"created_at"`
	LastAccess time.Time       `json:"last_access"`
	Status     playback.Status `json:"status"`
}

// PlayerListResponse lists the open players
type PlayerListResponse struct {
	Players []PlayerResponse `json:"players"`
	Total   int              `json:"total"`
}

// SeekRequest is the body of a seek request
type SeekRequest struct {
	Time *float64 `json:"time" binding:"required"`
	Play bool     `json:"play"`
}

// LikeRequest is the body of a like request
type LikeRequest struct {
	Type models.LikeType `json:"type" binding:"required"`
}

// LikeResponse reports the outcome of a like request
type LikeResponse struct {
	Success     bool            `json:"success"`
	LikeType    models.LikeType `json:"like_type"`
	NumLikes    *int64          `json:"num_likes"`
	NumDislikes *int64          `json:"num_dislikes"`
}

// QualityRequest is the body of a quality change
type QualityRequest struct {
	QualityID *int64 `json:"quality_id" binding:"required"`
}

// OverrideRequest is the body of an override mode change
type OverrideRequest struct {
	Enabled bool `json:"enabled"`
}

// PlayerHandler handles player control requests
type PlayerHandler struct {
	manager     playerManager
	likeTimeout time.Duration
}

// NewPlayerHandler creates a new player handler instance
func NewPlayerHandler(manager playerManager) *PlayerHandler {
	return &PlayerHandler{
		manager:     manager,
		likeTimeout: defaultLikeTimeout,
	}
}

func toPlayerResponse(s *player.Session) PlayerResponse {
	return PlayerResponse{
		ContentID:  s.ContentID,
		CreatedAt:  s.CreatedAt,
		LastAccess: s.LastAccess(),
		Status:     s.Player.Status(),
	}
}

// session looks up the player named in the path, writing a 404 when it is not open
func (h *PlayerHandler) session(c *gin.Context) (*player.Session, bool) {
	id := c.Param("id")
	s, ok := h.manager.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "player_not_found",
			Message: "No player is open for this content",
		})
		return nil, false
	}
	return s, true
}

// ListPlayers handles GET /players
func (h *PlayerHandler) ListPlayers(c *gin.Context) {
	sessions := h.manager.List()
	players := make([]PlayerResponse, 0, len(sessions))
	for _, s := range sessions {
		players = append(players, toPlayerResponse(s))
	}
	c.JSON(http.StatusOK, PlayerListResponse{Players: players, Total: len(players)})
}

// OpenPlayer handles POST /players/:id. The body is optional.
func (h *PlayerHandler) OpenPlayer(c *gin.Context) {
	id := c.Param("id")

	var opts player.OpenOptions
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: "Invalid request body: " + err.Error(),
			})
			return
		}
	}

	s, created, err := h.manager.Open(id, opts)
	if err != nil {
		logger.Log.Error().Err(err).Str("content_id", id).Msg("Failed to open player")
		switch {
		case errors.Is(err, player.ErrTooManyPlayers):
			c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Error:   "too_many_players",
				Message: "The maximum number of players is open",
			})
		case errors.Is(err, player.ErrManagerStopped):
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error:   "service_unavailable",
				Message: "Player service is unavailable",
			})
		default:
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "open_failed",
				Message: "Failed to open player",
			})
		}
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, toPlayerResponse(s))
}

// GetPlayer handles GET /players/:id
func (h *PlayerHandler) GetPlayer(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toPlayerResponse(s))
}

// ClosePlayer handles DELETE /players/:id
func (h *PlayerHandler) ClosePlayer(c *gin.Context) {
	if err := h.manager.Close(c.Param("id")); err != nil {
		if player.IsNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "player_not_found",
				Message: "No player is open for this content",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "close_failed",
			Message: "Failed to close player",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// Play handles POST /players/:id/play
func (h *PlayerHandler) Play(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Player.Play()
	c.Status(http.StatusNoContent)
}

// Pause handles POST /players/:id/pause
func (h *PlayerHandler) Pause(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Player.Pause()
	c.Status(http.StatusNoContent)
}

// Seek handles POST /players/:id/seek
func (h *PlayerHandler) Seek(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req SeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}
	if *req.Time < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_time",
			Message: "Time must not be negative",
		})
		return
	}

	s.Player.JumpToTime(*req.Time, req.Play)
	c.Status(http.StatusNoContent)
}

// Like handles POST /players/:id/like and waits for the site's answer
func (h *PlayerHandler) Like(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req LikeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	result := make(chan bool, 1)
	err := s.Player.RegisterLike(req.Type, func(success bool) { result <- success })
	switch {
	case errors.Is(err, playback.ErrLikesDisabled):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "likes_disabled",
			Message: "Likes are not enabled",
		})
		return
	case errors.Is(err, playback.ErrInvalidLikeType):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_like_type",
			Message: "Type must be like, dislike or reset",
		})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "like_failed",
			Message: "Failed to register like",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.likeTimeout)
	defer cancel()

	var success bool
	select {
	case success = <-result:
	case <-ctx.Done():
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{
			Error:   "like_timeout",
			Message: "The like request did not complete in time",
		})
		return
	}

	resp := LikeResponse{Success: success}
	resp.LikeType, _ = s.Player.LikeType()
	resp.NumLikes, _ = s.Player.NumLikes()
	resp.NumDislikes, _ = s.Player.NumDislikes()
	c.JSON(http.StatusOK, resp)
}

// SetQuality handles POST /players/:id/quality
func (h *PlayerHandler) SetQuality(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req QualityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	if err := s.Player.SetQuality(*req.QualityID); err != nil {
		if errors.Is(err, quality.ErrUnknownQuality) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "unknown_quality",
				Message: "Quality is not available",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "quality_failed",
			Message: "Failed to change quality",
		})
		return
	}
	c.Status(http.StatusAccepted)
}

// SetOverride handles POST /players/:id/override
func (h *PlayerHandler) SetOverride(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	s.Player.EnableOverrideMode(req.Enabled)
	c.Status(http.StatusAccepted)
}

// Refresh handles POST /players/:id/refresh
func (h *PlayerHandler) Refresh(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Player.Refresh()
	c.Status(http.StatusAccepted)
}

// SetupPlayerRoutes registers player routes
func SetupPlayerRoutes(apiGroup *gin.RouterGroup, manager playerManager) {
	handler := NewPlayerHandler(manager)

	players := apiGroup.Group("/players")
	players.GET("", handler.ListPlayers)
	players.POST("/:id", handler.OpenPlayer)
	players.GET("/:id", handler.GetPlayer)
	players.DELETE("/:id", handler.ClosePlayer)
	players.POST("/:id/play", handler.Play)
	players.POST("/:id/pause", handler.Pause)
	players.POST("/:id/seek", handler.Seek)
	players.POST("/:id/like", handler.Like)
	players.POST("/:id/quality", handler.SetQuality)
	players.POST("/:id/override", handler.SetOverride)
	players.POST("/:id/refresh", handler.Refresh)
}
