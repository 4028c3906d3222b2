package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/dkeye/meetrelay/internal/adapters/signal"
	"github.com/dkeye/meetrelay/internal/adapters/ws"
	"github.com/dkeye/meetrelay/internal/app/orch"
	"github.com/dkeye/meetrelay/internal/config"
	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// SetupRouter wires the operator API, the Prometheus scrape endpoint and the
// WebSocket control endpoint.
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctl *signal.Controller, gatherer prometheus.Gatherer) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/ws/control", func(c *gin.Context) {
		conn, err := ws.Upgrade(c.Writer, c.Request, cfg.MaxFrameBytes)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
			return
		}
		log.Info().Str("module", "adapters.http").Str("remote", c.Request.RemoteAddr).Msg("ws control connection")
		ctl.Go(ctx, conn)
	})

	api := r.Group("/api")

	api.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Stats())
	})

	api.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": o.Sessions.List()})
	})

	api.GET("/sessions/:code", func(c *gin.Context) {
		code := domain.NormalizeCode(c.Param("code"))
		roster, err := o.Roster(code)
		if err != nil {
			notFound(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": code, "participants": roster})
	})

	// DELETE /api/sessions/:code closes every member's connection; the
	// session disappears once the last disconnect has been processed.
	api.DELETE("/sessions/:code", func(c *gin.Context) {
		n, err := o.EvictSession(domain.SessionCode(c.Param("code")))
		if err != nil {
			notFound(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"kicked": n})
	})

	api.DELETE("/peers/:id", func(c *gin.Context) {
		if !o.Kick(domain.PeerID(c.Param("id"))) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown peer"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.GET("/journal", func(c *gin.Context) {
		if o.Journal == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if err != nil || limit < 1 || limit > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be in 1..1000"})
			return
		}
		session := domain.SessionCode("")
		if s := c.Query("session"); s != "" {
			session = domain.NormalizeCode(s)
		}
		entries, err := o.Journal.Recent(c.Request.Context(), session, limit)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("journal query")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "journal unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

func notFound(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrUnknownSession) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
