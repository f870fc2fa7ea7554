// Package domain contains persistence models for per-org plan enforcement.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/craftcv/craftcv/internal/plancatalog"
)

// PlanEnforcementRecord is an org's live copy of its plan terms. Limits and
// rates are snapshotted from the catalog on creation or plan change and may
// be overridden per org afterward; catalog edits do not flow through.
type PlanEnforcementRecord struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID snowflake.ID `gorm:"column:org_id;not null;uniqueIndex:ux_plan_enforcements_org" json:"org_id"`

	PlanType     plancatalog.PlanType     `gorm:"type:text;not null" json:"plan_type"`
	Limits       plancatalog.Limits       `gorm:"serializer:json;not null" json:"limits"`
	OverageRates plancatalog.OverageRates `gorm:"serializer:json;not null" json:"overage_rates"`

	EnforceSeatLimit  bool `gorm:"not null;default:true" json:"enforce_seat_limit"`
	EnforceUsageLimit bool `gorm:"not null;default:true" json:"enforce_usage_limit"`
	AllowOverage      bool `gorm:"not null;default:false" json:"allow_overage"`

	PlanExpiresAt *time.Time `json:"plan_expires_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (PlanEnforcementRecord) TableName() string { return "plan_enforcements" }
