package httpapi

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/domain"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/ports"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/services"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/infrastructure/capture"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/infrastructure/monitoring"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/clock"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/config"
)

// Server is the local debug and control API: session lifecycle, the
// telemetry surface, health and metrics. It is not exposed to peers.
type Server struct {
	cfg    *config.Config
	coord  *services.Coordinator
	agg    *services.Aggregator
	repo   ports.SessionRepository
	health *monitoring.HealthChecker
	hub    *TelemetryHub
	issuer *TokenIssuer
	clk    clock.Clock
	logger *zap.SugaredLogger

	srv *http.Server
}

func NewServer(
	cfg *config.Config,
	coord *services.Coordinator,
	agg *services.Aggregator,
	repo ports.SessionRepository,
	health *monitoring.HealthChecker,
	hub *TelemetryHub,
	issuer *TokenIssuer,
	clk clock.Clock,
	logger *zap.SugaredLogger,
) *Server {
	s := &Server{
		cfg:    cfg,
		coord:  coord,
		agg:    agg,
		repo:   repo,
		health: health,
		hub:    hub,
		issuer: issuer,
		clk:    clk,
		logger: logger,
	}
	s.srv = &http.Server{
		Addr:         cfg.API.Address,
		Handler:      s.routes(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if s.cfg.Tracing.Enabled {
		router.Use(TracingMiddleware())
	}

	router.GET("/healthz", s.getHealth)
	if s.cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	router.GET("/ws/telemetry", s.hub.Handle)

	api := router.Group("/api/v1")
	{
		api.GET("/session", s.getSession)
		api.GET("/sessions", s.listSessions)
		api.GET("/telemetry", s.getTelemetry)
		api.GET("/telemetry/peers", s.getPeerTelemetry)

		protected := api.Group("", AuthMiddleware(s.issuer))
		{
			protected.POST("/session", s.startSession)
			protected.DELETE("/session", s.stopSession)
			protected.POST("/session/navigate", s.navigate)
			protected.POST("/session/subtitles", s.toggleSubtitles)
		}
	}
	return router
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Infow("debug API listening", "address", s.cfg.API.Address)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes telemetry subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}

func (s *Server) getHealth(c *gin.Context) {
	status := s.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (s *Server) getSession(c *gin.Context) {
	session := s.coord.Session()
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrNoActiveSession.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.repo.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) getTelemetry(c *gin.Context) {
	snapshot, _ := s.agg.Latest()
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) getPeerTelemetry(c *gin.Context) {
	_, peers := s.agg.Latest()
	c.JSON(http.StatusOK, gin.H{"peers": peers})
}

func (s *Server) startSession(c *gin.Context) {
	var req struct {
		Path     string `json:"path" binding:"required"`
		Kind     string `json:"kind"`
		Quality  string `json:"quality"`
		Platform string `json:"platform"`
		Engine   string `json:"engine"`
		OSMajor  int    `json:"os_major"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tier := domain.QualityTier(req.Quality)
	if tier == "" {
		tier = domain.TierMedium
	}
	capability := services.Capability{
		Platform: req.Platform,
		Engine:   req.Engine,
		OSMajor:  req.OSMajor,
	}
	strategy := services.StrategyFor(capability)

	source, err := s.openSource(req.Path, domain.SourceKind(req.Kind), strategy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.coord.StartSession(c.Request.Context(), source, tier, capability)
	if err != nil {
		source.Close()
		if errors.Is(err, domain.ErrSessionActive) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session})
}

func (s *Server) stopSession(c *gin.Context) {
	if err := s.coord.StopSession(c.Request.Context()); err != nil {
		if errors.Is(err, domain.ErrNoActiveSession) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) navigate(c *gin.Context) {
	var req struct {
		Action string `json:"action" binding:"required"`
		Index  *int   `json:"index"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Action {
	case domain.NavNext, domain.NavPrev:
	case domain.NavJump:
		if req.Index == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "jump requires an index"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
		return
	}

	if err := s.coord.BroadcastPlaylistNav(req.Action, req.Index); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) toggleSubtitles(c *gin.Context) {
	var req struct {
		TrackID string `json:"track_id" binding:"required"`
		Enabled bool   `json:"enabled"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.coord.BroadcastSubtitleRemote(req.TrackID, req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) openSource(path string, kind domain.SourceKind, strategy services.DeviceStrategy) (ports.CaptureSource, error) {
	switch kind {
	case domain.SourceRaster, domain.SourceImage:
		payload, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return capture.NewStillSource(path, kind, payload, s.cfg.Session.IdleResendEvery, s.clk), nil
	default:
		source, err := capture.NewVideoFileSource(path, strategy.MaxChunkBytes, s.clk, s.logger)
		if err != nil {
			return nil, err
		}
		return source, nil
	}
}
