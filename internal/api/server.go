package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"digestpipe/internal/discovery"
	"digestpipe/internal/domain"
)

const requestIDHeader = "X-Request-Id"
const requestIDKey = "request_id"

// Server wraps Service behind a local-only HTTP boundary for the operator
// web UI's two-stage selection flow (pick podcasts, review episodes,
// process).
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	service    *Service
	logger     zerolog.Logger
}

// NewServer builds the gin router and http.Server for addr, wiring the
// given Service behind /api.
func NewServer(addr string, service *Service, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())

	s := &Server{service: service, logger: logger}
	s.routes(router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // episode processing can run long; no fixed write deadline
		IdleTimeout:  60 * time.Second,
	}
	s.router = router
	return s
}

func (s *Server) routes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})
		api.GET("/podcasts", s.handleListPodcasts)
		api.POST("/episodes/list", s.handleListEpisodes)
		api.POST("/episodes/process", s.handleProcessEpisodes)
		api.POST("/cancel", s.handleCancel)
	}
}

// Start runs the HTTP server until it is shut down or fails.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting local api server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requestIDMiddleware stamps every request with a correlation id, reused
// from the caller's X-Request-Id header when present so a UI that already
// tracks a run id doesn't get a second, disconnected one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) requestLogger(c *gin.Context) zerolog.Logger {
	id, _ := c.Get(requestIDKey)
	return s.logger.With().Interface(requestIDKey, id).Logger()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) handleListPodcasts(c *gin.Context) {
	names := make([]string, 0, len(s.service.Catalog))
	for _, p := range s.service.Catalog {
		names = append(names, p.Name)
	}
	c.JSON(http.StatusOK, gin.H{"podcasts": names})
}

type listEpisodesRequest struct {
	SelectedPodcasts []string `json:"selected_podcasts"`
	DaysBack         int      `json:"days_back"`
}

func (s *Server) handleListEpisodes(c *gin.Context) {
	var req listEpisodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger := s.requestLogger(c)
	missingByPodcast := map[string][]discovery.MissingEpisode{}
	episodes, err := s.service.ListRecentEpisodes(c.Request.Context(), req.SelectedPodcasts, req.DaysBack, func(p DiscoveryProgress) {
		logger.Debug().Str("podcast", p.Podcast).Int("index", p.Index).Int("total", p.Total).Msg("discovery progress")
		if len(p.Missing) > 0 {
			missingByPodcast[p.Podcast] = p.Missing
		}
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), requestIDKey: c.GetString(requestIDKey)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"episodes": episodes, "missing_episodes": missingByPodcast, requestIDKey: c.GetString(requestIDKey)})
}

type processEpisodesRequest struct {
	Episodes []domain.Episode `json:"episodes"`
	Mode     domain.Mode      `json:"mode"`
}

func (s *Server) handleProcessEpisodes(c *gin.Context) {
	var req processEpisodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Mode.Valid() {
		req.Mode = domain.ModeTest
	}

	logger := s.requestLogger(c)
	summaries := s.service.ProcessEpisodes(c.Request.Context(), req.Episodes, req.Mode, func(evt EpisodeProgress) {
		logger.Debug().Str("stage", evt.Stage).Str("podcast", evt.Podcast).Str("title", evt.Title).Str("state", string(evt.State)).Msg("pipeline progress")
	})
	c.JSON(http.StatusOK, gin.H{"summaries": summaries, requestIDKey: c.GetString(requestIDKey)})
}

func (s *Server) handleCancel(c *gin.Context) {
	s.service.Cancel()
	c.Status(http.StatusNoContent)
}
