// Package server exposes the knowledge base over HTTP and the assistant
// over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/xhad/askgov/internal/types"
	"github.com/xhad/askgov/pkg/assistant"
	"github.com/xhad/askgov/pkg/logger"
	"github.com/xhad/askgov/pkg/retrieval"
	"github.com/xhad/askgov/pkg/scraper"
)

type Config struct {
	Addr        string
	ReadTimeout time.Duration
	// Scraper is used for knowledge imports by URL. BaseURL is set per
	// request.
	Scraper scraper.ScraperConfig
	// AllowedOrigins restricts websocket clients. Empty allows any origin.
	AllowedOrigins []string
}

type Server struct {
	config    Config
	service   *retrieval.Service
	assistant *assistant.Assistant
	router    *gin.Engine
	upgrader  websocket.Upgrader
}

func New(config Config, service *retrieval.Service, asst *assistant.Assistant) *Server {
	if config.Addr == "" {
		config.Addr = ":3001"
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 30 * time.Second
	}

	s := &Server{
		config:    config,
		service:   service,
		assistant: asst,
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", s.handleHealth)
	router.GET("/ws", s.handleWebSocket)

	api := router.Group("/api")
	{
		api.POST("/vectors", s.handleAddDocument)
		api.GET("/vectors", s.handleSearch)
		api.DELETE("/vectors", s.handleDeleteDocument)
		api.GET("/vectors/list", s.handleList)
		api.POST("/knowledge", s.handleImportKnowledge)
	}

	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server on %s", s.config.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	var (
		embedErr   *types.EmbeddingServiceError
		storageErr *types.StorageError
		scoringErr *types.ScoringError
	)

	switch {
	case errors.Is(err, types.ErrEmptyContent),
		errors.Is(err, types.ErrInvalidType),
		errors.Is(err, types.ErrInvalidTopK):
		return http.StatusBadRequest
	case errors.As(err, &embedErr):
		return http.StatusBadGateway
	case errors.As(err, &storageErr), errors.As(err, &scoringErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
