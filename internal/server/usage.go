package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	usagedomain "github.com/craftcv/craftcv/internal/usagecounter/domain"
)

func (s *Server) GetUsage(c *gin.Context) {
	counterType := usagedomain.CounterType(c.Param("counterType"))
	period := usagedomain.Period(c.DefaultQuery("period", string(usagedomain.PeriodMonthly)))

	counter, err := s.usageSvc.GetOrCreate(c.Request.Context(), orgIDFrom(c), counterType, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, counter)
}

type incrementUsageRequest struct {
	CounterType string             `json:"counter_type"`
	Period      string             `json:"period"`
	Amount      float64            `json:"amount"`
	Breakdown   map[string]float64 `json:"breakdown,omitempty"`
}

func (s *Server) IncrementUsage(c *gin.Context) {
	var req incrementUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.Period == "" {
		req.Period = string(usagedomain.PeriodMonthly)
	}
	if req.Amount == 0 {
		req.Amount = 1
	}

	counter, err := s.usageSvc.Increment(c.Request.Context(), usagedomain.IncrementRequest{
		OrgID:       orgIDFrom(c),
		CounterType: usagedomain.CounterType(req.CounterType),
		Period:      usagedomain.Period(req.Period),
		Amount:      req.Amount,
		Breakdown:   req.Breakdown,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, counter)
}

type resetUsageRequest struct {
	Period string `json:"period"`
}

func (s *Server) ResetUsage(c *gin.Context) {
	var req resetUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.usageSvc.Reset(c.Request.Context(), orgIDFrom(c), usagedomain.Period(req.Period)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
