package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/craftcv/craftcv/internal/planenforcement/domain"
)

type repo struct{}

// Provide constructs the gorm-backed plan enforcement repository.
func Provide() domain.Repository { return &repo{} }

func (r *repo) FindByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.PlanEnforcementRecord, error) {
	var record domain.PlanEnforcementRecord
	err := db.WithContext(ctx).First(&record, "org_id = ?", orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repo) CreateIfAbsent(ctx context.Context, db *gorm.DB, record *domain.PlanEnforcementRecord) (bool, error) {
	tx := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "org_id"}},
			DoNothing: true,
		}).
		Create(record)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, record *domain.PlanEnforcementRecord) error {
	return db.WithContext(ctx).Save(record).Error
}
