// Package domain contains persistence models for metered usage counters.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// CounterType identifies a metered operation family.
type CounterType string

const (
	CounterExports       CounterType = "exports"
	CounterOptimizations CounterType = "optimizations"
	CounterCoverLetters  CounterType = "cover_letters"
	CounterAPICalls      CounterType = "api_calls"
	CounterStorageGB     CounterType = "storage_gb"
	CounterUsers         CounterType = "users"
)

// CounterTypes lists every known counter type.
var CounterTypes = []CounterType{
	CounterExports,
	CounterOptimizations,
	CounterCoverLetters,
	CounterAPICalls,
	CounterStorageGB,
	CounterUsers,
}

func (c CounterType) Valid() bool {
	for _, known := range CounterTypes {
		if c == known {
			return true
		}
	}
	return false
}

// CounterTypeForOperation maps an operation name to its counter type.
// "api_call" and "storage" are irregular; the rest pluralize with "s".
func CounterTypeForOperation(operation string) CounterType {
	switch operation {
	case "api_call":
		return CounterAPICalls
	case "storage":
		return CounterStorageGB
	default:
		return CounterType(operation + "s")
	}
}

// Period is the aggregation window kind of a counter.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodMonthly, PeriodYearly:
		return true
	}
	return false
}

// UsageCounter aggregates metered activity for one org over one window.
// At most one row exists per (org_id, counter_type, period, period_start).
type UsageCounter struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	OrgID       snowflake.ID `gorm:"column:org_id;not null;uniqueIndex:ux_usage_counters_window,priority:1"`
	CounterType CounterType  `gorm:"column:counter_type;type:text;not null;uniqueIndex:ux_usage_counters_window,priority:2"`
	Period      Period       `gorm:"type:text;not null;uniqueIndex:ux_usage_counters_window,priority:3"`
	PeriodStart time.Time    `gorm:"not null;uniqueIndex:ux_usage_counters_window,priority:4"`
	PeriodEnd   time.Time    `gorm:"not null"`

	// CurrentCount is fractional for storage_gb, integral otherwise.
	CurrentCount float64 `gorm:"not null;default:0"`
	// Limit is the snapshot of the plan limit taken when the counter row
	// was created. "limit" is reserved in several dialects.
	Limit float64 `gorm:"column:limit_value;not null;default:0"`

	// Breakdown holds informational sub-counts (e.g. export format).
	Breakdown datatypes.JSONMap `gorm:"type:jsonb"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageCounter) TableName() string { return "usage_counters" }

// LimitExceededError reports an increment that would push a counter past
// its limit. The counter is not mutated when this is returned.
type LimitExceededError struct {
	CounterType CounterType
	Current     float64
	Limit       float64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded: %v of %v used", e.CounterType, e.Current, e.Limit)
}
