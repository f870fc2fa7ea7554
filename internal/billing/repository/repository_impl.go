package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/craftcv/craftcv/internal/billing/domain"
)

type repo struct{}

// Provide constructs the gorm-backed overage event repository.
func Provide() domain.Repository { return &repo{} }

func (r *repo) Create(ctx context.Context, db *gorm.DB, event *domain.OverageEvent) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID, since time.Time) ([]domain.OverageEvent, error) {
	var events []domain.OverageEvent
	err := db.WithContext(ctx).
		Where("org_id = ? AND occurred_at >= ?", orgID, since).
		Order("occurred_at DESC").
		Find(&events).Error
	return events, err
}

func (r *repo) SumCost(ctx context.Context, db *gorm.DB, orgID snowflake.ID, since time.Time) (int64, float64, error) {
	var row struct {
		Events int64
		Total  float64
	}
	err := db.WithContext(ctx).
		Model(&domain.OverageEvent{}).
		Select("COUNT(*) AS events, COALESCE(SUM(cost), 0) AS total").
		Where("org_id = ? AND occurred_at >= ?", orgID, since).
		Scan(&row).Error
	return row.Events, row.Total, err
}
