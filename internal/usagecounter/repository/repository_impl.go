package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftcv/craftcv/internal/usagecounter/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, counterType domain.CounterType, period domain.Period, window domain.Window) (*domain.UsageCounter, error) {
	var counter domain.UsageCounter
	err := db.WithContext(ctx).
		Where("org_id = ? AND counter_type = ? AND period = ? AND period_start = ?",
			orgID, counterType, period, window.Start).
		First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &counter, nil
}

func (r *repo) CreateIfAbsent(ctx context.Context, db *gorm.DB, counter *domain.UsageCounter) (bool, error) {
	if counter == nil {
		return false, gorm.ErrInvalidData
	}
	result := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "org_id"},
			{Name: "counter_type"},
			{Name: "period"},
			{Name: "period_start"},
		},
		DoNothing: true,
	}).Create(counter)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementIfUnderLimit is the atomic check-then-write: the WHERE clause
// rejects any increment that would overrun limit_value, so concurrent
// callers can never push the count past the limit.
func (r *repo) IncrementIfUnderLimit(ctx context.Context, db *gorm.DB, counter *domain.UsageCounter, amount float64) (bool, error) {
	if counter == nil {
		return false, gorm.ErrInvalidData
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE usage_counters
		 SET current_count = current_count + ?, updated_at = ?
		 WHERE org_id = ? AND counter_type = ? AND period = ? AND period_start = ?
		   AND current_count + ? <= limit_value`,
		amount,
		time.Now().UTC(),
		counter.OrgID,
		counter.CounterType,
		counter.Period,
		counter.PeriodStart,
		amount,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateBreakdown(ctx context.Context, db *gorm.DB, counter *domain.UsageCounter) error {
	if counter == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE usage_counters SET breakdown = ?, updated_at = ? WHERE id = ?`,
		counter.Breakdown,
		time.Now().UTC(),
		counter.ID,
	).Error
}

func (r *repo) ResetWindow(ctx context.Context, db *gorm.DB, orgID snowflake.ID, period domain.Period, window domain.Window, resetAt string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE usage_counters
		 SET current_count = 0, breakdown = NULL, metadata = ?, updated_at = ?
		 WHERE org_id = ? AND period = ? AND period_start = ?`,
		datatypesJSON(resetAt),
		time.Now().UTC(),
		orgID,
		period,
		window.Start,
	).Error
}

func datatypesJSON(resetAt string) datatypes.JSONMap {
	return datatypes.JSONMap{"last_reset_at": resetAt}
}
