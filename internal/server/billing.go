package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func sinceFrom(c *gin.Context) (time.Time, bool) {
	raw := c.Query("since")
	if raw == "" {
		// Default to the trailing 30 days.
		return time.Now().UTC().AddDate(0, 0, -30), true
	}
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return since, true
}

func (s *Server) ListOverages(c *gin.Context) {
	since, ok := sinceFrom(c)
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	events, err := s.billingSvc.ListByOrg(c.Request.Context(), orgIDFrom(c), since)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"overages": events})
}

func (s *Server) OverageSummary(c *gin.Context) {
	since, ok := sinceFrom(c)
	if !ok {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	summary, err := s.billingSvc.Summary(c.Request.Context(), orgIDFrom(c), since)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
