package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crimson-sun/sentinel/internal/model"
)

// handleSummary returns warnings recorded since the given unix timestamp,
// newest first. Omitting "since" returns everything.
func (s *Server) handleSummary(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a unix timestamp"})
			return
		}
		since = time.Unix(secs, 0)
	}

	warnings, err := s.store.Query(c.Request.Context(), since)
	if err != nil {
		s.logger.Error("summary query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if warnings == nil {
		warnings = []model.Warning{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  warnings,
		"count": len(warnings),
	})
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
