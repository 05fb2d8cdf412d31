// Package server exposes the filesystem over HTTP for the desktop frontend:
// JSON endpoints for every operation, a websocket event feed, and Prometheus
// metrics.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deskfs/deskfs/config"
	"github.com/deskfs/deskfs/filesystem"
	"github.com/deskfs/deskfs/internal/util"
	"github.com/deskfs/deskfs/notify"
	"github.com/deskfs/deskfs/session"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg      *config.Config
	router   *gin.Engine
	fs       *filesystem.FileSystem
	metrics  *Metrics
	handlers *Handlers
	srv      *http.Server
}

// New builds the router. The caller starts it with Run.
func New(cfg *config.Config, fs *filesystem.FileSystem, sessions *session.Manager, hub *notify.Hub) *Server {
	gin.SetMode(gin.ReleaseMode)

	metrics := NewMetrics()
	handlers := NewHandlers(fs, sessions, metrics)
	ws := NewWSHandler(hub, metrics)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestMetrics(metrics, fs))

	router.GET("/", handlers.Root)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", ws.HandleConnection)

	auth := router.Group("/auth")
	{
		auth.POST("/login", handlers.Login)
		auth.POST("/logout", handlers.Logout)
		auth.POST("/elevate", handlers.Elevate)
		auth.POST("/drop", handlers.Drop)
	}

	fsGroup := router.Group("/fs")
	{
		fsGroup.GET("/list", handlers.List)
		fsGroup.GET("/read", handlers.Read)
		fsGroup.GET("/stat", handlers.Stat)
		fsGroup.POST("/write", handlers.Write)
		fsGroup.POST("/file", handlers.CreateFile)
		fsGroup.POST("/dir", handlers.CreateDirectory)
		fsGroup.POST("/delete", handlers.Delete)
		fsGroup.POST("/move", handlers.Move)
		fsGroup.POST("/copy", handlers.Copy)
		fsGroup.POST("/trash", handlers.Trash)
		fsGroup.POST("/trash/empty", handlers.EmptyTrash)
		fsGroup.POST("/trash/restore", handlers.Restore)
		fsGroup.POST("/chmod", handlers.Chmod)
		fsGroup.POST("/chown", handlers.Chown)
		fsGroup.POST("/cd", handlers.ChangeDir)
	}

	router.GET("/users", handlers.ListUsers)
	router.POST("/users", handlers.AddUser)
	router.DELETE("/users/:name", handlers.DeleteUser)
	router.GET("/groups", handlers.ListGroups)
	router.POST("/groups", handlers.AddGroup)
	router.DELETE("/groups/:name", handlers.DeleteGroup)

	return &Server{
		cfg:      cfg,
		router:   router,
		fs:       fs,
		metrics:  metrics,
		handlers: handlers,
	}
}

// Router exposes the engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.srv = &http.Server{Addr: s.cfg.Listen, Handler: s.router}
	logger := util.GetLogger("server")
	logger.Info().Str("listen", s.cfg.Listen).Msg("HTTP server listening")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// requestMetrics records request counters and latency, and refreshes the
// tree gauges so /metrics reflects the live generation.
func requestMetrics(m *Metrics, fs *filesystem.FileSystem) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
		m.TickUptime()
		m.TreeGeneration.Set(float64(fs.Generation()))

		// full walk only when scraped
		if path == "/metrics" {
			count := 0
			fs.Root().Walk(func(*filesystem.Node) { count++ })
			m.NodesTotal.Set(float64(count))
		}
	}
}
