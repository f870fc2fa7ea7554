package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	usagedomain "github.com/craftcv/craftcv/internal/usagecounter/domain"
)

// Tracker is the overage side-channel. TrackOverage must never surface an
// error into the caller's request path; failures are logged and dropped.
type Tracker interface {
	TrackOverage(ctx context.Context, req OverageRequest)
	ListByOrg(ctx context.Context, orgID snowflake.ID, since time.Time) ([]OverageEvent, error)
	Summary(ctx context.Context, orgID snowflake.ID, since time.Time) (*OverageSummary, error)
}

type OverageRequest struct {
	OrgID       snowflake.ID
	CounterType usagedomain.CounterType
	Operation   string
	Quantity    float64
	Rate        float64
	Metadata    map[string]any
}

// OverageSummary aggregates an org's overage cost since a point in time.
type OverageSummary struct {
	OrgID     string  `json:"org_id"`
	Events    int     `json:"events"`
	TotalCost float64 `json:"total_cost"`
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, event *OverageEvent) error
	ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID, since time.Time) ([]OverageEvent, error)
	SumCost(ctx context.Context, db *gorm.DB, orgID snowflake.ID, since time.Time) (int64, float64, error)
}

var ErrInvalidOrganization = errors.New("invalid_organization")
