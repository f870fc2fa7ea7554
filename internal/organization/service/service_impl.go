package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/craftcv/craftcv/internal/organization/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("organization.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Organization, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	slug := strings.TrimSpace(strings.ToLower(req.Slug))
	if slug == "" {
		slug = slugify(name)
	}

	meta := datatypes.JSONMap{}
	for k, v := range req.Meta {
		meta[k] = v
	}

	org := &domain.Organization{
		ID:       s.genID.Generate(),
		Name:     name,
		Slug:     slug,
		Metadata: meta,
	}
	if err := s.repo.Create(ctx, s.db, org); err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
	)
	return org, nil
}

func (s *service) GetByID(ctx context.Context, orgID snowflake.ID) (*domain.Organization, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	org, err := s.repo.FindByID(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func (s *service) AddMember(ctx context.Context, req domain.AddMemberRequest) (*domain.OrganizationMember, error) {
	if req.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	switch req.Role {
	case domain.RoleOwner, domain.RoleAdmin, domain.RoleMember:
	default:
		return nil, domain.ErrInvalidRole
	}

	existing, err := s.repo.FindMember(ctx, s.db, req.OrgID, req.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Active {
			return nil, domain.ErrMemberExists
		}
		// Rejoin: reactivate the old row under the requested role.
		err = s.db.WithContext(ctx).
			Model(existing).
			Updates(map[string]any{"active": true, "role": req.Role}).Error
		if err != nil {
			return nil, err
		}
		existing.Active = true
		existing.Role = req.Role
		return existing, nil
	}

	member := &domain.OrganizationMember{
		ID:     s.genID.Generate(),
		OrgID:  req.OrgID,
		UserID: req.UserID,
		Role:   req.Role,
		Active: true,
	}
	if err := s.repo.CreateMember(ctx, s.db, member); err != nil {
		return nil, err
	}

	s.log.Info("member added",
		zap.String("org_id", req.OrgID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("role", req.Role),
	)
	return member, nil
}

func (s *service) RemoveMember(ctx context.Context, orgID, userID snowflake.ID) error {
	if orgID == 0 {
		return domain.ErrInvalidOrganization
	}
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	affected, err := s.repo.DeactivateMember(ctx, s.db, orgID, userID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (s *service) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.OrganizationMember, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.ListMembers(ctx, s.db, orgID)
}

func (s *service) RoleOf(ctx context.Context, orgID, userID snowflake.ID) (string, error) {
	member, err := s.repo.FindMember(ctx, s.db, orgID, userID)
	if err != nil {
		return "", err
	}
	if member == nil || !member.Active {
		return "", domain.ErrMemberNotFound
	}
	return member.Role, nil
}

func (s *service) CountActiveSeats(ctx context.Context, orgID snowflake.ID) (int, error) {
	if orgID == 0 {
		return 0, domain.ErrInvalidOrganization
	}
	count, err := s.repo.CountActiveMembers(ctx, s.db, orgID)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func slugify(name string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash && b.Len() > 0 {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
