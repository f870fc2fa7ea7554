package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Acquire takes (or renews, or overrides) the lock on a variant. Same
	// holder re-acquiring extends expiry; a higher-priority type force-
	// releases a different holder's lock; otherwise *ConflictError.
	Acquire(ctx context.Context, req AcquireRequest) (*SoftLock, error)

	// Release is the holder's voluntary release. Releasing someone else's
	// lock fails with ErrNotOwner.
	Release(ctx context.Context, lockID, userID snowflake.ID) (*SoftLock, error)

	// ForceRelease releases unconditionally; authorization is the caller's
	// concern. An empty reason defaults to "Force released by admin".
	ForceRelease(ctx context.Context, lockID, releasedBy snowflake.ID, reason string) (*SoftLock, error)

	// Extend pushes expiry out by additionalMinutes relative to the lock's
	// current ExpiresAt, so repeated extensions compound.
	Extend(ctx context.Context, lockID snowflake.ID, additionalMinutes int) (*SoftLock, error)

	CheckPermission(ctx context.Context, req PermissionRequest) (*PermissionResult, error)

	// CleanupExpired bulk-releases expired-but-unreleased locks. Idempotent
	// maintenance; reads never depend on it having run.
	CleanupExpired(ctx context.Context) (int64, error)

	GetByID(ctx context.Context, lockID snowflake.ID) (*SoftLock, error)
	ListByVariant(ctx context.Context, orgID, variantID snowflake.ID) ([]SoftLock, error)
	ListByUser(ctx context.Context, orgID, userID snowflake.ID) ([]SoftLock, error)
	ListExpired(ctx context.Context) ([]SoftLock, error)
}

type AcquireRequest struct {
	OrgID     snowflake.ID
	UserID    snowflake.ID
	VariantID snowflake.ID
	LockType  LockType
	// DurationMinutes defaults to the configured lock TTL when zero.
	DurationMinutes int
	Scope           *LockScope
	Reason          string
}

type PermissionRequest struct {
	OrgID     snowflake.ID
	UserID    snowflake.ID
	VariantID snowflake.ID
	Action    string
}

type PermissionResult struct {
	HasPermission bool      `json:"has_permission"`
	Lock          *SoftLock `json:"lock,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, lockID snowflake.ID) (*SoftLock, error)
	// FindActiveByVariant returns the lock active at now, or nil.
	FindActiveByVariant(ctx context.Context, db *gorm.DB, orgID, variantID snowflake.ID, now time.Time) (*SoftLock, error)
	Create(ctx context.Context, db *gorm.DB, lock *SoftLock) error
	Update(ctx context.Context, db *gorm.DB, lock *SoftLock) error
	// ReleaseExpired marks every unreleased lock with expires_at <= now as
	// released with the given reason; returns the number released.
	ReleaseExpired(ctx context.Context, db *gorm.DB, now time.Time, reason string) (int64, error)
	ListByVariant(ctx context.Context, db *gorm.DB, orgID, variantID snowflake.ID) ([]SoftLock, error)
	ListActiveByUser(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, now time.Time) ([]SoftLock, error)
	ListExpired(ctx context.Context, db *gorm.DB, now time.Time) ([]SoftLock, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidVariant      = errors.New("invalid_variant")
	ErrInvalidLockType     = errors.New("invalid_lock_type")
	ErrInvalidDuration     = errors.New("invalid_duration")
	ErrNotFound            = errors.New("lock_not_found")
	ErrNotOwner            = errors.New("cannot release lock held by another user")
	ErrAlreadyReleased     = errors.New("lock_already_released")
)

// ConflictError reports an acquire refused because another user holds a
// lock of equal or higher priority.
type ConflictError struct {
	Requested LockType
	Held      LockType
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot acquire %s; %s lock held by another user", e.Requested, e.Held)
}
