// Package domain contains persistence models for overage billing events.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	usagedomain "github.com/craftcv/craftcv/internal/usagecounter/domain"
)

// OverageEvent records usage beyond a plan limit that was allowed through
// for later invoicing. Events are append-only.
type OverageEvent struct {
	ID          snowflake.ID           `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID           `gorm:"column:org_id;not null;index:idx_overage_events_org" json:"org_id"`
	CounterType usagedomain.CounterType `gorm:"column:counter_type;type:text;not null" json:"counter_type"`
	Operation   string                 `gorm:"type:text;not null" json:"operation"`

	// Units beyond the limit, the per-unit rate applied, and their product.
	Quantity float64 `gorm:"not null" json:"quantity"`
	Rate     float64 `gorm:"not null" json:"rate"`
	Cost     float64 `gorm:"not null" json:"cost"`

	OccurredAt time.Time         `gorm:"not null;index:idx_overage_events_occurred" json:"occurred_at"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OverageEvent) TableName() string { return "overage_events" }
