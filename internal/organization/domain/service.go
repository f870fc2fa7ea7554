package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Organization, error)
	GetByID(ctx context.Context, orgID snowflake.ID) (*Organization, error)
	AddMember(ctx context.Context, req AddMemberRequest) (*OrganizationMember, error)
	RemoveMember(ctx context.Context, orgID, userID snowflake.ID) error
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]OrganizationMember, error)
	RoleOf(ctx context.Context, orgID, userID snowflake.ID) (string, error)

	// CountActiveSeats is the live seat count the plan enforcer consumes.
	CountActiveSeats(ctx context.Context, orgID snowflake.ID) (int, error)
}

type CreateRequest struct {
	Name string         `json:"name"`
	Slug string         `json:"slug"`
	Meta map[string]any `json:"metadata"`
}

type AddMemberRequest struct {
	OrgID  snowflake.ID
	UserID snowflake.ID
	Role   string
}

type MemberResponse struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, org *Organization) error
	FindByID(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Organization, error)
	CreateMember(ctx context.Context, db *gorm.DB, member *OrganizationMember) error
	DeactivateMember(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (int64, error)
	ListMembers(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]OrganizationMember, error)
	FindMember(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (*OrganizationMember, error)
	CountActiveMembers(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrNotFound            = errors.New("not_found")
	ErrMemberNotFound      = errors.New("member_not_found")
	ErrMemberExists        = errors.New("member_exists")
)
