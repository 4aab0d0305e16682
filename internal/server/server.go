package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/cinedex/cinedex/internal/config"
	"github.com/cinedex/cinedex/internal/server/handlers"
)

// Server owns the HTTP listener and its router.
type Server struct {
	cfg  *config.Config
	http *http.Server
	log  hclog.Logger
}

// SetupRouter configures and returns the main router.
func SetupRouter(cfg *config.Config, h *handlers.Handlers) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	if cfg.Server.EnableCORS {
		r.Use(func(c *gin.Context) {
			c.Header("Access-Control-Allow-Origin", "*")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			c.Header("Access-Control-Expose-Headers", "Content-Range, X-Video-Duration")

			if c.Request.Method == "OPTIONS" {
				c.AbortWithStatus(204)
				return
			}

			c.Next()
		})
	}

	registerRoutes(r, h)
	return r
}

func registerRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.GET("/video/stream/:id", h.StreamVideo)
	r.GET("/video/thumbnail", h.GetThumbnail)

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/browse", h.Browse)

		api.GET("/videos", h.SearchVideos)
		api.GET("/videos/:id", h.GetVideo)
		api.PUT("/videos/:id", h.UpdateVideo)
		api.POST("/videos/:id/view", h.RecordView)
		api.DELETE("/videos/:id", h.DeleteVideo)

		api.GET("/tags/top", h.TopTags)
		api.GET("/suggestions", h.Suggestions)

		api.POST("/batch/update", h.BatchUpdate)
		api.POST("/batch/delete", h.BatchDelete)
		api.POST("/batch/directory/update", h.BatchUpdateDirectory)
		api.POST("/batch/directory/delete", h.BatchDeleteDirectory)
	}
}

// New builds a server around a fully wired handler set.
func New(cfg *config.Config, h *handlers.Handlers, log hclog.Logger) *Server {
	router := SetupRouter(cfg, h)
	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		log: log.Named("server"),
	}
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}
