package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/craftcv/craftcv/internal/plancatalog"
	plandomain "github.com/craftcv/craftcv/internal/planenforcement/domain"
)

type ensurePlanRequest struct {
	PlanType string `json:"plan_type"`
}

func (s *Server) EnsurePlan(c *gin.Context) {
	var req ensurePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record, err := s.planSvc.EnsureRecord(c.Request.Context(), orgIDFrom(c), plancatalog.PlanType(req.PlanType))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Server) GetPlan(c *gin.Context) {
	record, err := s.planSvc.GetRecord(c.Request.Context(), orgIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

type updatePlanRequest struct {
	PlanType          *string                   `json:"plan_type,omitempty"`
	Limits            *plancatalog.Limits       `json:"limits,omitempty"`
	OverageRates      *plancatalog.OverageRates `json:"overage_rates,omitempty"`
	EnforceSeatLimit  *bool                     `json:"enforce_seat_limit,omitempty"`
	EnforceUsageLimit *bool                     `json:"enforce_usage_limit,omitempty"`
	AllowOverage      *bool                     `json:"allow_overage,omitempty"`
	PlanExpiresAt     *time.Time                `json:"plan_expires_at,omitempty"`
	ClearExpiry       bool                      `json:"clear_expiry,omitempty"`
}

func (s *Server) UpdatePlan(c *gin.Context) {
	var req updatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	update := plandomain.UpdateRequest{
		OrgID:             orgIDFrom(c),
		Limits:            req.Limits,
		OverageRates:      req.OverageRates,
		EnforceSeatLimit:  req.EnforceSeatLimit,
		EnforceUsageLimit: req.EnforceUsageLimit,
		AllowOverage:      req.AllowOverage,
		PlanExpiresAt:     req.PlanExpiresAt,
		ClearExpiry:       req.ClearExpiry,
	}
	if req.PlanType != nil {
		plan := plancatalog.PlanType(*req.PlanType)
		update.PlanType = &plan
	}

	record, err := s.planSvc.UpdateRecord(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Server) CheckSeatLimit(c *gin.Context) {
	result, err := s.planSvc.CheckSeatLimit(c.Request.Context(), orgIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type checkUsageRequest struct {
	Operation string  `json:"operation"`
	Amount    float64 `json:"amount"`
}

func (s *Server) CheckUsageLimit(c *gin.Context) {
	var req checkUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.Amount == 0 {
		req.Amount = 1
	}

	result, err := s.planSvc.CheckUsageLimit(c.Request.Context(), orgIDFrom(c), req.Operation, req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) IsFeatureEnabled(c *gin.Context) {
	enabled, err := s.planSvc.IsFeatureEnabled(c.Request.Context(), orgIDFrom(c), c.Param("feature"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"feature": c.Param("feature"), "enabled": enabled})
}
