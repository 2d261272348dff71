package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ship/internal/logging"
	"ship/internal/ship/app"
	"ship/internal/ship/ports"
	"ship/internal/utils"
)

// Config holds the HTTP surface settings.
type Config struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	AllowedOrigins []string      `json:"allowed_origins"` // empty = allow all
	Debug          bool          `json:"debug"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
}

// DefaultConfig returns the conventional local-development settings.
func DefaultConfig() Config {
	return Config{
		Host:        "localhost",
		Port:        8080,
		ReadTimeout: 30 * time.Second,
		// SSE and WebSocket streams outlive any sane write timeout.
		WriteTimeout: 0,
	}
}

// Server exposes the orchestrator over REST plus SSE and WebSocket event
// streams.
type Server struct {
	orchestrator *app.Orchestrator
	packager     ports.Packager
	engine       *gin.Engine
	httpServer   *http.Server
	upgrader     websocket.Upgrader
	logger       logging.Logger
}

// NewServer wires the router. Start must be called to begin serving.
func NewServer(orchestrator *app.Orchestrator, packager ports.Packager, cfg Config) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	s := &Server{
		orchestrator: orchestrator,
		packager:     packager,
		engine:       engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(cfg.AllowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range cfg.AllowedOrigins {
					if origin == allowed {
						return true
					}
				}
				return false
			},
		},
		logger: utils.NewComponentLogger("HTTPServer"),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	{
		api.POST("/sessions", s.handleCreateSession)
		api.GET("/sessions", s.handleListSessions)
		api.GET("/sessions/:id", s.handleGetSession)
		api.POST("/sessions/:id/execute", s.handleExecute)
		api.POST("/sessions/:id/cancel", s.handleCancel)
		api.DELETE("/sessions/:id", s.handleDeleteSession)
		api.GET("/sessions/:id/events", s.handleSSE)
		api.GET("/sessions/:id/ws", s.handleWebSocket)
		api.GET("/sessions/:id/codegen", s.handleCodegenStatus)
		api.GET("/sessions/:id/codegen/download", s.handleCodegenDownload)
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}
