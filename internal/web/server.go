package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ecosort/wastelens/internal/capture"
	"github.com/ecosort/wastelens/internal/config"
	"github.com/ecosort/wastelens/internal/detect"
	"github.com/ecosort/wastelens/internal/logger"
	"github.com/ecosort/wastelens/internal/session"
	"github.com/ecosort/wastelens/internal/stats"
	"github.com/ecosort/wastelens/internal/storage"
)

// Server is the HTTP glue between the browser UI, the upload store, and the
// detection session.
type Server struct {
	config     *config.Config
	logger     *logger.Logger
	httpServer *http.Server
	router     *gin.Engine
	detector   *detect.Client
	uploads    *storage.UploadStore
	hub        *Hub
	session    *session.Session
	startTime  time.Time

	mu     sync.Mutex
	source *capture.StreamSource // held while a camera session runs
}

// NewServer creates the web server and wires the session observer callbacks
// onto the websocket hub.
func NewServer(cfg *config.Config, detector *detect.Client, uploads *storage.UploadStore, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	s := &Server{
		config:    cfg,
		logger:    log,
		router:    router,
		detector:  detector,
		uploads:   uploads,
		hub:       NewHub(log),
		startTime: time.Now(),
	}

	s.session = session.New(session.Config{
		TickInterval:        cfg.Session.TickInterval,
		MaxQueueSize:        cfg.Session.MaxQueueSize,
		ConfidenceThreshold: cfg.Detection.ConfidenceThreshold,
		FPSReportInterval:   cfg.Session.FPSReportInterval,
	}, detector, nil, session.Callbacks{
		OnStatistics: func(snap stats.Snapshot) {
			s.hub.Broadcast("statistics", snap)
		},
		OnDetectionFailed: func(err error) {
			s.hub.Broadcast("detection_failed", gin.H{"error": err.Error()})
		},
		OnThroughput: func(fps float64) {
			s.hub.Broadcast("throughput", gin.H{"fps": fps})
		},
	}, log)

	s.setupRoutes()
	return s
}

// Start starts the web server.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Web.Enabled {
		s.logger.Info("Web server is disabled")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.config.Web.Host, s.config.Web.Port)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 60 * time.Second,
	}

	go func() {
		s.logger.Info("Starting web server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Web server error", "error", err, "address", addr)
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		s.logger.Info("Web server started", "address", addr)
		return nil
	}
}

// Stop shuts the server down and stops any running session.
func (s *Server) Stop(ctx context.Context) error {
	s.session.Stop()
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping web server")
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes sets up all API routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		api.POST("/detect", s.handleDetectUpload)

		camera := api.Group("/camera")
		{
			camera.POST("/start", s.handleCameraStart)
			camera.POST("/stop", s.handleCameraStop)
			camera.POST("/live", s.handleCameraLive)
			camera.POST("/frame", s.handleCameraFrame)
			camera.POST("/capture", s.handleCameraCapture)
			camera.GET("/stats", s.handleCameraStats)
		}
	}

	s.router.GET("/ws", s.handleWebsocket)
	s.router.Static("/static/uploads", s.uploads.Dir())

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Endpoint not found",
		})
	})
}

// ginLogger creates a Gin middleware for logging
func ginLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
