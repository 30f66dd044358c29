// Package httpapi exposes the narrow status/control surface the
// presentation layer consumes: session snapshots plus join/leave/mute.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/squadlink/voicemesh/internal/app"
	"github.com/squadlink/voicemesh/internal/config"
	"github.com/squadlink/voicemesh/internal/domain"
)

type JoinRequest struct {
	Channel string `json:"channel"`
}

type MuteRequest struct {
	Muted bool `json:"muted"`
}

func SetupRouter(cfg *config.Config, sess *app.Session) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	api.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, sess.Snapshot())
	})

	api.GET("/roster", func(c *gin.Context) {
		c.JSON(http.StatusOK, sess.Snapshot().Roster)
	})

	api.GET("/links", func(c *gin.Context) {
		c.JSON(http.StatusOK, sess.Snapshot().Links)
	})

	api.POST("/join", func(c *gin.Context) {
		var req JoinRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Channel == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid channel"})
			return
		}
		err := sess.Join(c.Request.Context(), domain.ChannelID(req.Channel))
		switch {
		case err == nil:
			c.JSON(http.StatusOK, sess.Snapshot())
		case errors.Is(err, domain.ErrUnknownChannel):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, app.ErrNotIdle):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			log.Warn().Err(err).Str("module", "httpapi").Msg("join failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
	})

	api.POST("/leave", func(c *gin.Context) {
		sess.Leave()
		c.JSON(http.StatusOK, gin.H{"status": "left"})
	})

	api.POST("/mute", func(c *gin.Context) {
		var req MuteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		sess.SetMuted(req.Muted)
		c.JSON(http.StatusOK, gin.H{"muted": req.Muted})
	})

	log.Info().Str("module", "httpapi").Msg("router setup")
	return r
}
