package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleHealth is ambient infrastructure, not one of §6's two endpoints: a
// liveness/readiness surface distinct from ingest/retrieve.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).String(),
	})
}

// handleMetrics exposes the running counters kept by ingest.Metrics.
func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}
