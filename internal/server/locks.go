package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	lockdomain "github.com/craftcv/craftcv/internal/softlock/domain"
)

type acquireLockRequest struct {
	VariantID       string                `json:"variant_id"`
	LockType        lockdomain.LockType   `json:"lock_type"`
	DurationMinutes int                   `json:"duration_minutes"`
	Scope           *lockdomain.LockScope `json:"scope,omitempty"`
	Reason          string                `json:"reason,omitempty"`
}

func (s *Server) AcquireLock(c *gin.Context) {
	var req acquireLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	variantID, err := snowflake.ParseString(req.VariantID)
	if err != nil {
		AbortWithError(c, lockdomain.ErrInvalidVariant)
		return
	}

	lock, err := s.lockSvc.Acquire(c.Request.Context(), lockdomain.AcquireRequest{
		OrgID:           orgIDFrom(c),
		UserID:          userIDFrom(c),
		VariantID:       variantID,
		LockType:        req.LockType,
		DurationMinutes: req.DurationMinutes,
		Scope:           req.Scope,
		Reason:          req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, lock)
}

func (s *Server) GetLock(c *gin.Context) {
	lockID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	lock, err := s.lockSvc.GetByID(c.Request.Context(), lockID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, lock)
}

func (s *Server) ReleaseLock(c *gin.Context) {
	lockID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	lock, err := s.lockSvc.Release(c.Request.Context(), lockID, userIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, lock)
}

type forceReleaseRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) ForceReleaseLock(c *gin.Context) {
	lockID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req forceReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	lock, err := s.lockSvc.ForceRelease(c.Request.Context(), lockID, userIDFrom(c), req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, lock)
}

type extendLockRequest struct {
	AdditionalMinutes int `json:"additional_minutes"`
}

func (s *Server) ExtendLock(c *gin.Context) {
	lockID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req extendLockRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	lock, err := s.lockSvc.Extend(c.Request.Context(), lockID, req.AdditionalMinutes)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, lock)
}

type checkPermissionRequest struct {
	VariantID string `json:"variant_id"`
	Action    string `json:"action"`
}

func (s *Server) CheckLockPermission(c *gin.Context) {
	var req checkPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	variantID, err := snowflake.ParseString(req.VariantID)
	if err != nil {
		AbortWithError(c, lockdomain.ErrInvalidVariant)
		return
	}

	result, err := s.lockSvc.CheckPermission(c.Request.Context(), lockdomain.PermissionRequest{
		OrgID:     orgIDFrom(c),
		UserID:    userIDFrom(c),
		VariantID: variantID,
		Action:    req.Action,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListLocks serves list-by-variant when variant_id is supplied, otherwise
// the caller's active locks.
func (s *Server) ListLocks(c *gin.Context) {
	ctx := c.Request.Context()
	orgID := orgIDFrom(c)

	if raw := c.Query("variant_id"); raw != "" {
		variantID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, lockdomain.ErrInvalidVariant)
			return
		}
		locks, err := s.lockSvc.ListByVariant(ctx, orgID, variantID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"locks": locks})
		return
	}

	userID := userIDFrom(c)
	if raw := c.Query("user_id"); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, lockdomain.ErrInvalidUser)
			return
		}
		userID = parsed
	}
	locks, err := s.lockSvc.ListByUser(ctx, orgID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locks": locks})
}

func (s *Server) ListExpiredLocks(c *gin.Context) {
	locks, err := s.lockSvc.ListExpired(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locks": locks})
}

func (s *Server) CleanupExpiredLocks(c *gin.Context) {
	released, err := s.lockSvc.CleanupExpired(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"released_count": released})
}
