package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"bidstack/internal/config"
	"bidstack/internal/service"
)

// Server exposes the query surface as JSON over HTTP.
type Server struct {
	queries *service.Queries
	router  *gin.Engine
	handler http.Handler
	listen  string
	timeout time.Duration
	logger  zerolog.Logger
}

// New wires routes, CORS and request logging.
func New(cfg config.APIConfig, queries *service.Queries, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		queries: queries,
		router:  gin.New(),
		listen:  cfg.Listen,
		timeout: cfg.RequestTimeout,
		logger:  logger.With().Str("component", "api").Logger(),
	}
	s.router.Use(gin.Recovery(), s.logMiddleware(), s.timeoutMiddleware())
	s.setupRoutes()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.health)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/backends", s.backends)
		v1.GET("/bids", s.aggregateBids)
		v1.GET("/dispatch", s.aggregateDispatch)
		v1.GET("/dispatch/units", s.aggregateDispatchByUnits)
		v1.GET("/units/bids", s.bidsByUnit)
		v1.GET("/units", s.duidsAndStations)
		v1.GET("/stations/duids", s.duidsForStations)
		v1.GET("/prices", s.aggregatePrices)
		v1.GET("/demand", s.regionDemand)
		v1.GET("/tech-types", s.distinctTechTypes)
	}
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.listen).Msg("http server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info().Msg("http server stopped")
		return nil
	}
}

func (s *Server) logMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		event := s.logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = s.logger.Warn()
		}
		event.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(started)).
			Msg("request served")
	}
}

func (s *Server) timeoutMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
