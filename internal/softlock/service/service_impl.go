package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/craftcv/craftcv/internal/clock"
	"github.com/craftcv/craftcv/internal/config"
	"github.com/craftcv/craftcv/internal/keyedmutex"
	"github.com/craftcv/craftcv/internal/observability/metrics"
	"github.com/craftcv/craftcv/internal/softlock/domain"
	"github.com/craftcv/craftcv/internal/softlock/guard"
)

// Actions that never conflict with a lock held by someone else.
var readOnlyActions = map[string]bool{
	"view":    true,
	"read":    true,
	"preview": true,
}

type Params struct {
	fx.In

	Config  config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Guard   *guard.Locker    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	guard   *guard.Locker
	metrics *metrics.Metrics

	// mu serializes acquire per (org, variant) within this process.
	mu *keyedmutex.KeyedMutex

	defaultDuration time.Duration
}

func New(p Params) domain.Service {
	defaultMinutes := p.Config.LockDefaultMinutes
	if defaultMinutes <= 0 {
		defaultMinutes = 30
	}
	return &service{
		db:              p.DB,
		log:             p.Log.Named("softlock.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		guard:           p.Guard,
		metrics:         p.Metrics,
		mu:              keyedmutex.New(),
		defaultDuration: time.Duration(defaultMinutes) * time.Minute,
	}
}

func variantKey(orgID, variantID snowflake.ID) string {
	return fmt.Sprintf("softlock:%s:%s", orgID, variantID)
}

func (s *service) Acquire(ctx context.Context, req domain.AcquireRequest) (*domain.SoftLock, error) {
	if req.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if req.VariantID == 0 {
		return nil, domain.ErrInvalidVariant
	}
	if !req.LockType.Valid() {
		return nil, domain.ErrInvalidLockType
	}
	if req.DurationMinutes < 0 {
		return nil, domain.ErrInvalidDuration
	}
	duration := s.defaultDuration
	if req.DurationMinutes > 0 {
		duration = time.Duration(req.DurationMinutes) * time.Minute
	}

	// Check-and-create must be serialized per resource: the keyed mutex
	// covers this process, the redis guard covers sibling instances.
	key := variantKey(req.OrgID, req.VariantID)
	s.mu.Lock(key)
	defer s.mu.Unlock(key)

	token, err := s.guard.Lock(ctx, key, 5*time.Second)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.guard.Release(ctx, key, token); err != nil {
			s.log.Warn("failed to release acquire guard", zap.String("key", key), zap.Error(err))
		}
	}()

	now := s.clock.Now()
	active, err := s.repo.FindActiveByVariant(ctx, s.db, req.OrgID, req.VariantID, now)
	if err != nil {
		return nil, err
	}

	if active != nil && active.UserID == req.UserID {
		// Renewal: same holder re-acquiring extends the existing lock.
		return s.extendLock(ctx, active, int(duration/time.Minute), "renew")
	}

	if active != nil {
		if req.LockType.Priority() <= active.LockType.Priority() {
			s.metrics.RecordLockConflict()
			return nil, &domain.ConflictError{Requested: req.LockType, Held: active.LockType}
		}
		if _, err := s.forceRelease(ctx, active, req.UserID, domain.ReasonOverride, now); err != nil {
			return nil, err
		}
		s.metrics.RecordLockOverride()
		s.log.Info("lock overridden by higher priority acquire",
			zap.String("variant_id", req.VariantID.String()),
			zap.String("held_type", string(active.LockType)),
			zap.String("new_type", string(req.LockType)),
		)
	}

	lock := &domain.SoftLock{
		ID:         s.genID.Generate(),
		OrgID:      req.OrgID,
		UserID:     req.UserID,
		VariantID:  req.VariantID,
		LockType:   req.LockType,
		Scope:      req.Scope,
		Reason:     req.Reason,
		AcquiredAt: now,
		ExpiresAt:  now.Add(duration),
	}
	lock.RecordActivity("acquire", now)
	if err := s.repo.Create(ctx, s.db, lock); err != nil {
		return nil, err
	}

	s.log.Info("lock acquired",
		zap.String("org_id", req.OrgID.String()),
		zap.String("variant_id", req.VariantID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("lock_type", string(req.LockType)),
		zap.Time("expires_at", lock.ExpiresAt),
	)
	return lock, nil
}

func (s *service) Release(ctx context.Context, lockID, userID snowflake.ID) (*domain.SoftLock, error) {
	lock, err := s.repo.FindByID(ctx, s.db, lockID)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, domain.ErrNotFound
	}
	if lock.UserID != userID {
		return nil, domain.ErrNotOwner
	}
	if lock.ReleasedAt != nil {
		return nil, domain.ErrAlreadyReleased
	}

	now := s.clock.Now()
	lock.ReleasedAt = &now
	lock.ReleasedBy = &userID
	lock.RecordActivity("release", now)
	if err := s.repo.Update(ctx, s.db, lock); err != nil {
		return nil, err
	}

	s.log.Info("lock released",
		zap.String("lock_id", lockID.String()),
		zap.String("user_id", userID.String()),
	)
	return lock, nil
}

func (s *service) ForceRelease(ctx context.Context, lockID, releasedBy snowflake.ID, reason string) (*domain.SoftLock, error) {
	lock, err := s.repo.FindByID(ctx, s.db, lockID)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, domain.ErrNotFound
	}
	if lock.ReleasedAt != nil {
		return lock, nil
	}
	if reason == "" {
		reason = domain.ReasonForceDefault
	}
	return s.forceRelease(ctx, lock, releasedBy, reason, s.clock.Now())
}

func (s *service) forceRelease(ctx context.Context, lock *domain.SoftLock, releasedBy snowflake.ID, reason string, now time.Time) (*domain.SoftLock, error) {
	lock.ReleasedAt = &now
	lock.ReleasedBy = &releasedBy
	lock.Reason = reason
	lock.RecordActivity("force_release", now)
	if err := s.repo.Update(ctx, s.db, lock); err != nil {
		return nil, err
	}

	s.log.Info("lock force released",
		zap.String("lock_id", lock.ID.String()),
		zap.String("released_by", releasedBy.String()),
		zap.String("reason", reason),
	)
	return lock, nil
}

func (s *service) Extend(ctx context.Context, lockID snowflake.ID, additionalMinutes int) (*domain.SoftLock, error) {
	lock, err := s.repo.FindByID(ctx, s.db, lockID)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, domain.ErrNotFound
	}
	if additionalMinutes <= 0 {
		additionalMinutes = int(s.defaultDuration / time.Minute)
	}
	return s.extendLock(ctx, lock, additionalMinutes, "extend")
}

// extendLock pushes expiry out from the lock's current ExpiresAt, so
// back-to-back extensions compound rather than racing "now".
func (s *service) extendLock(ctx context.Context, lock *domain.SoftLock, additionalMinutes int, action string) (*domain.SoftLock, error) {
	if lock.ReleasedAt != nil {
		return nil, domain.ErrAlreadyReleased
	}
	lock.ExpiresAt = lock.ExpiresAt.Add(time.Duration(additionalMinutes) * time.Minute)
	lock.RecordActivity(action, s.clock.Now())
	if err := s.repo.Update(ctx, s.db, lock); err != nil {
		return nil, err
	}

	s.log.Info("lock extended",
		zap.String("lock_id", lock.ID.String()),
		zap.Int("additional_minutes", additionalMinutes),
		zap.Time("expires_at", lock.ExpiresAt),
	)
	return lock, nil
}

func (s *service) CheckPermission(ctx context.Context, req domain.PermissionRequest) (*domain.PermissionResult, error) {
	if req.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if req.VariantID == 0 {
		return nil, domain.ErrInvalidVariant
	}

	now := s.clock.Now()
	lock, err := s.repo.FindActiveByVariant(ctx, s.db, req.OrgID, req.VariantID, now)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return &domain.PermissionResult{HasPermission: true}, nil
	}

	if lock.UserID == req.UserID {
		// Holder activity keeps the trail fresh; failure to record it
		// never blocks the holder.
		lock.RecordActivity(req.Action, now)
		if err := s.repo.Update(ctx, s.db, lock); err != nil {
			s.log.Warn("failed to record lock activity",
				zap.String("lock_id", lock.ID.String()),
				zap.Error(err),
			)
		}
		return &domain.PermissionResult{HasPermission: true, Lock: lock}, nil
	}

	if readOnlyActions[req.Action] {
		return &domain.PermissionResult{HasPermission: true, Lock: lock}, nil
	}

	if lock.Scope != nil && lock.Scope.ReadOnly {
		return &domain.PermissionResult{
			HasPermission: false,
			Lock:          lock,
			Reason:        fmt.Sprintf("%s lock held by another user (read-only)", lock.LockType),
		}, nil
	}

	// Section/field scope is advisory for the UI; only the readOnly flag
	// is enforced here.
	return &domain.PermissionResult{HasPermission: true, Lock: lock}, nil
}

func (s *service) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	released, err := s.repo.ReleaseExpired(ctx, s.db, now, domain.ReasonExpired)
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.metrics.RecordCleanupReleased(released)
		s.log.Info("expired locks released", zap.Int64("count", released))
	}
	return released, nil
}

func (s *service) GetByID(ctx context.Context, lockID snowflake.ID) (*domain.SoftLock, error) {
	lock, err := s.repo.FindByID(ctx, s.db, lockID)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, domain.ErrNotFound
	}
	return lock, nil
}

func (s *service) ListByVariant(ctx context.Context, orgID, variantID snowflake.ID) ([]domain.SoftLock, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if variantID == 0 {
		return nil, domain.ErrInvalidVariant
	}
	return s.repo.ListByVariant(ctx, s.db, orgID, variantID)
}

func (s *service) ListByUser(ctx context.Context, orgID, userID snowflake.ID) ([]domain.SoftLock, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.ListActiveByUser(ctx, s.db, orgID, userID, s.clock.Now())
}

func (s *service) ListExpired(ctx context.Context) ([]domain.SoftLock, error) {
	return s.repo.ListExpired(ctx, s.db, s.clock.Now())
}
