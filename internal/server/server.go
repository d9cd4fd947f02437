package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cozy-creator/sticker-server/internal/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/logger"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

type Server struct {
	listenAddr string
	ginEngine  *gin.Engine
	inner      *http.Server
}

func NewServer(config *config.Config) (*Server, error) {
	gin.SetMode(getGinMode(config.Environment))
	r := gin.New()

	r.Use(logger.SetLogger(
		logger.WithUTC(true),
		logger.WithSkipPath([]string{"/healthz", "/api/events"}),
	))

	r.Use(cors.New(
		cors.Config{
			AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowOrigins:     []string{"*"},
			AllowHeaders:     []string{"*"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "ETag", "X-Content-SHA256"},
			AllowCredentials: true,
			MaxAge:           300,
		},
	))

	if config.PublicDir != "" {
		r.Use(static.Serve("/", static.LocalFile(config.PublicDir, true)))
	}
	r.Use(gin.Recovery())

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	return &Server{
		listenAddr: addr,
		ginEngine:  r,
		inner: &http.Server{
			Handler:           r,
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.ginEngine
}

func (s *Server) Addr() string {
	return s.listenAddr
}

// Start serves until Stop is called. A graceful stop is not an error.
func (s *Server) Start() error {
	if err := s.inner.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return s.inner.Shutdown(ctx)
}

func getGinMode(env string) string {
	switch env {
	case "dev":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}
