package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/craftcv/craftcv/internal/authorization"
	"github.com/craftcv/craftcv/internal/governance"
	lockdomain "github.com/craftcv/craftcv/internal/softlock/domain"
)

type authorizeRequest struct {
	VariantID string  `json:"variant_id"`
	Operation string  `json:"operation"`
	LockType  string  `json:"lock_type,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
}

// Authorize is the pre-flight check write handlers call before a protected
// action. It gates on the role capability for the operation, then on plan
// limits, then on the variant's lock.
func (s *Server) Authorize(c *gin.Context) {
	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	variantID, err := snowflake.ParseString(req.VariantID)
	if err != nil {
		AbortWithError(c, lockdomain.ErrInvalidVariant)
		return
	}

	orgID := orgIDFrom(c)
	userID := userIDFrom(c)

	cap := authorization.CapabilityForOperation(req.Operation)
	actor := "user:" + userID.String()
	if err := s.authzSvc.Authorize(c.Request.Context(), actor, orgID.String(), cap.Object, cap.Action); err != nil {
		AbortWithError(c, err)
		return
	}

	err = s.governanceSvc.Authorize(c.Request.Context(), governance.AuthorizeRequest{
		OrgID:     orgID,
		UserID:    userID,
		VariantID: variantID,
		Operation: req.Operation,
		LockType:  lockdomain.LockType(req.LockType),
		Amount:    req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"allowed": true})
}
