package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	orgdomain "github.com/craftcv/craftcv/internal/organization/domain"
	"github.com/craftcv/craftcv/internal/plancatalog"
	plandomain "github.com/craftcv/craftcv/internal/planenforcement/domain"
)

type createOrganizationRequest struct {
	Name     string         `json:"name"`
	Slug     string         `json:"slug,omitempty"`
	PlanType string         `json:"plan_type,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreateOrganization provisions a tenant: the org row, the creator as
// owner, and the plan enforcement record snapshotted from the catalog.
func (s *Server) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	org, err := s.organizationSvc.Create(ctx, orgdomain.CreateRequest{
		Name: req.Name,
		Slug: req.Slug,
		Meta: req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if _, err := s.organizationSvc.AddMember(ctx, orgdomain.AddMemberRequest{
		OrgID:  org.ID,
		UserID: userIDFrom(c),
		Role:   orgdomain.RoleOwner,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	if _, err := s.planSvc.EnsureRecord(ctx, org.ID, plancatalog.PlanType(req.PlanType)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, org)
}

func (s *Server) GetOrganization(c *gin.Context) {
	org, err := s.organizationSvc.GetByID(c.Request.Context(), orgIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, org)
}

func (s *Server) ListMembers(c *gin.Context) {
	members, err := s.organizationSvc.ListMembers(c.Request.Context(), orgIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"members": members})
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// AddMember runs the seat check before admitting a member; seat overage
// permitted by the plan flows through like any other overage.
func (s *Server) AddMember(c *gin.Context) {
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	userID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		AbortWithError(c, orgdomain.ErrInvalidUser)
		return
	}

	ctx := c.Request.Context()
	orgID := orgIDFrom(c)

	result, err := s.planSvc.CheckSeatLimit(ctx, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !result.Allowed {
		AbortWithError(c, &plandomain.ForbiddenError{Result: result})
		return
	}

	member, err := s.organizationSvc.AddMember(ctx, orgdomain.AddMemberRequest{
		OrgID:  orgID,
		UserID: userID,
		Role:   req.Role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, member)
}

func (s *Server) RemoveMember(c *gin.Context) {
	userID, err := snowflake.ParseString(c.Param("userID"))
	if err != nil {
		AbortWithError(c, orgdomain.ErrInvalidUser)
		return
	}

	if err := s.organizationSvc.RemoveMember(c.Request.Context(), orgIDFrom(c), userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
