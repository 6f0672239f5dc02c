// Package api exposes the ingress HTTP surface: signal intake plus health
// and status endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/BrianElionDev/BuyBot/internal/scheduler"
	"github.com/BrianElionDev/BuyBot/internal/signals"
)

// SignalHandler routes inbound signals and alerts.
type SignalHandler interface {
	HandleSignal(ctx context.Context, sig signals.InboundSignal) error
	HandleAlert(ctx context.Context, alert signals.InboundAlert) error
}

// SchedulerControl exposes the scheduler to the status and trigger routes.
type SchedulerControl interface {
	RunNow(name string) error
	Status() []scheduler.LoopStatus
}

// StreamStatus reports user-data stream health.
type StreamStatus interface {
	Status() (connected bool, lastEvent time.Time, reconnects int)
}

// Server is the HTTP ingress.
type Server struct {
	router    *gin.Engine
	signals   SignalHandler
	scheduler SchedulerControl
	stream    StreamStatus
	logger    zerolog.Logger
	startedAt time.Time

	httpServer *http.Server
}

// NewServer builds the router. stream and sched may be nil when the
// corresponding subsystem is disabled.
func NewServer(handler SignalHandler, sched SchedulerControl, stream StreamStatus, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router:    gin.New(),
		signals:   handler,
		scheduler: sched,
		stream:    stream,
		logger:    logger.With().Str("component", "api").Logger(),
		startedAt: time.Now(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/websocket/status", s.handleWebsocketStatus)
	s.router.GET("/scheduler/status", s.handleSchedulerStatus)
	s.router.POST("/scheduler/run/:name", s.handleSchedulerRun)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/discord/signal", s.handleSignal)
		v1.POST("/discord/signal/update", s.handleSignalUpdate)
	}
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("API server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

type signalRequest struct {
	Timestamp  string `json:"timestamp" binding:"required"`
	Content    string `json:"content" binding:"required"`
	Structured string `json:"structured"`
	DiscordID  string `json:"discord_id"`
	Trader     string `json:"trader"`
}

// handleSignal accepts an initial signal and queues it. Well-formed
// payloads always get a 2xx; per-trade outcomes live on the trade row.
func (s *Server) handleSignal(c *gin.Context) {
	var req signalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ts, err := signals.ParseTimestamp(req.Timestamp)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig := signals.InboundSignal{
		Timestamp:  ts,
		Content:    req.Content,
		Structured: req.Structured,
		DiscordID:  req.DiscordID,
		Trader:     req.Trader,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.signals.HandleSignal(ctx, sig); err != nil {
			s.logger.Error().Err(err).Str("discord_id", sig.DiscordID).Msg("signal processing failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

type signalUpdateRequest struct {
	Timestamp string `json:"timestamp" binding:"required"`
	Content   string `json:"content" binding:"required"`
	Trade     string `json:"trade" binding:"required"`
	DiscordID string `json:"discord_id"`
	Trader    string `json:"trader"`
}

func (s *Server) handleSignalUpdate(c *gin.Context) {
	var req signalUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ts, err := signals.ParseTimestamp(req.Timestamp)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert := signals.InboundAlert{
		Timestamp: ts,
		Content:   req.Content,
		Trade:     req.Trade,
		DiscordID: req.DiscordID,
		Trader:    req.Trader,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.signals.HandleAlert(ctx, alert); err != nil {
			s.logger.Error().Err(err).Str("trade", alert.Trade).Msg("alert processing failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) handleHealth(c *gin.Context) {
	sub := gin.H{}
	if s.stream != nil {
		connected, _, _ := s.stream.Status()
		sub["websocket"] = map[string]any{"connected": connected}
	}
	if s.scheduler != nil {
		sub["scheduler"] = map[string]any{"loops": len(s.scheduler.Status())}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptime":        time.Since(s.startedAt).String(),
		"subcomponents": sub,
	})
}

func (s *Server) handleWebsocketStatus(c *gin.Context) {
	if s.stream == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	connected, lastEvent, reconnects := s.stream.Status()
	c.JSON(http.StatusOK, gin.H{
		"enabled":    true,
		"connected":  connected,
		"last_event": lastEvent,
		"reconnects": reconnects,
	})
}

func (s *Server) handleSchedulerStatus(c *gin.Context) {
	if s.scheduler == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "loops": s.scheduler.Status()})
}

func (s *Server) handleSchedulerRun(c *gin.Context) {
	if s.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler disabled"})
		return
	}
	name := c.Param("name")
	if err := s.scheduler.RunNow(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "triggered", "loop": name})
}
