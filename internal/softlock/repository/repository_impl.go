package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/craftcv/craftcv/internal/softlock/domain"
)

type repo struct{}

// Provide constructs the gorm-backed soft lock repository.
func Provide() domain.Repository { return &repo{} }

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, lockID snowflake.ID) (*domain.SoftLock, error) {
	var lock domain.SoftLock
	err := db.WithContext(ctx).First(&lock, "id = ?", lockID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

func (r *repo) FindActiveByVariant(ctx context.Context, db *gorm.DB, orgID, variantID snowflake.ID, now time.Time) (*domain.SoftLock, error) {
	var lock domain.SoftLock
	err := db.WithContext(ctx).
		Where("org_id = ? AND variant_id = ? AND released_at IS NULL AND expires_at > ?", orgID, variantID, now).
		Order("acquired_at DESC").
		First(&lock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, lock *domain.SoftLock) error {
	return db.WithContext(ctx).Create(lock).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, lock *domain.SoftLock) error {
	return db.WithContext(ctx).Save(lock).Error
}

func (r *repo) ReleaseExpired(ctx context.Context, db *gorm.DB, now time.Time, reason string) (int64, error) {
	tx := db.WithContext(ctx).
		Model(&domain.SoftLock{}).
		Where("released_at IS NULL AND expires_at <= ?", now).
		Updates(map[string]any{
			"released_at": now,
			"reason":      reason,
			"updated_at":  now,
		})
	return tx.RowsAffected, tx.Error
}

func (r *repo) ListByVariant(ctx context.Context, db *gorm.DB, orgID, variantID snowflake.ID) ([]domain.SoftLock, error) {
	var locks []domain.SoftLock
	err := db.WithContext(ctx).
		Where("org_id = ? AND variant_id = ?", orgID, variantID).
		Order("acquired_at DESC").
		Find(&locks).Error
	return locks, err
}

func (r *repo) ListActiveByUser(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID, now time.Time) ([]domain.SoftLock, error) {
	var locks []domain.SoftLock
	err := db.WithContext(ctx).
		Where("org_id = ? AND user_id = ? AND released_at IS NULL AND expires_at > ?", orgID, userID, now).
		Order("acquired_at DESC").
		Find(&locks).Error
	return locks, err
}

func (r *repo) ListExpired(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.SoftLock, error) {
	var locks []domain.SoftLock
	err := db.WithContext(ctx).
		Where("released_at IS NULL AND expires_at <= ?", now).
		Order("expires_at ASC").
		Find(&locks).Error
	return locks, err
}
