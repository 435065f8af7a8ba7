// Package httpapi exposes the ingest and retrieve endpoints over HTTP,
// following the request/response contract of §6: gin for routing, a
// zerolog-backed logger/recovery pair in place of gin's defaults, gzip
// response compression, and a weighted semaphore bounding concurrent
// ingests.
package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/bhiemenz/georocket/chunkstore"
	"github.com/bhiemenz/georocket/ingest"
)

// Config controls how a Server is assembled.
type Config struct {
	Store               chunkstore.Store
	Logger              zerolog.Logger
	MaxConcurrentIngest int64
}

// Server wraps a gin.Engine with the georocket routes wired in.
type Server struct {
	Engine *gin.Engine

	store    chunkstore.Store
	metrics  *ingest.Metrics
	logger   zerolog.Logger
	ingestMu *semaphore.Weighted
	started  time.Time
}

// New builds a Server ready to Run. Callers own the returned gin.Engine's
// lifecycle.
func New(cfg Config) *Server {
	if cfg.MaxConcurrentIngest <= 0 {
		cfg.MaxConcurrentIngest = 8
	}

	s := &Server{
		store:    cfg.Store,
		metrics:  ingest.NewMetrics(),
		logger:   cfg.Logger,
		ingestMu: semaphore.NewWeighted(cfg.MaxConcurrentIngest),
		started:  time.Now(),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(zerologMiddleware(cfg.Logger), zerologRecovery(cfg.Logger), gzipMiddleware())

	engine.POST("/store", s.handleIngest)
	engine.GET("/store/:name", s.handleRetrieve)
	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", s.handleMetrics)

	s.Engine = engine
	return s
}

// zerologMiddleware logs one line per request at the level matching its
// outcome, replacing gin.Logger().
func zerologMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := logger.Info()
		if len(c.Errors) > 0 || c.Writer.Status() >= 500 {
			event = logger.Error()
		} else if c.Writer.Status() >= 400 {
			event = logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request handled")
	}
}

// zerologRecovery converts a panic in a handler into a logged 500 response,
// replacing gin.Recovery().
func zerologRecovery(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("handler panicked")
				c.AbortWithStatus(500)
			}
		}()
		c.Next()
	}
}
