// Package domain contains persistence models for resource soft locks.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// LockType classifies a lock by the activity it protects. Types are totally
// ordered by priority; a higher-priority acquire overrides a lower one.
type LockType string

const (
	LockEdit     LockType = "edit"
	LockReview   LockType = "review"
	LockApproval LockType = "approval"
	LockExport   LockType = "export"
)

// Priority returns the override rank (edit < review < approval < export).
// Unknown types rank lowest.
func (t LockType) Priority() int {
	switch t {
	case LockEdit:
		return 1
	case LockReview:
		return 2
	case LockApproval:
		return 3
	case LockExport:
		return 4
	}
	return 0
}

func (t LockType) Valid() bool { return t.Priority() > 0 }

// LockScope narrows a lock to parts of the variant. It is advisory metadata
// for the UI except for ReadOnly, which this layer does enforce.
type LockScope struct {
	Sections []string `json:"sections,omitempty"`
	Fields   []string `json:"fields,omitempty"`
	ReadOnly bool     `json:"read_only,omitempty"`
}

// Release reasons written by the manager itself.
const (
	ReasonOverride     = "Override by higher priority lock"
	ReasonForceDefault = "Force released by admin"
	ReasonExpired      = "Expired automatically"
)

// SoftLock is a TTL-bounded advisory hold on one resume variant. At most one
// lock per (org_id, variant_id) is active at any instant.
type SoftLock struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"column:org_id;not null;index:idx_soft_locks_variant,priority:1" json:"org_id"`
	UserID    snowflake.ID `gorm:"not null;index:idx_soft_locks_user" json:"user_id"`
	VariantID snowflake.ID `gorm:"not null;index:idx_soft_locks_variant,priority:2" json:"variant_id"`

	LockType LockType   `gorm:"type:text;not null" json:"lock_type"`
	Scope    *LockScope `gorm:"serializer:json" json:"scope,omitempty"`
	Reason   string     `gorm:"type:text" json:"reason,omitempty"`

	AcquiredAt time.Time     `gorm:"not null" json:"acquired_at"`
	ExpiresAt  time.Time     `gorm:"not null;index:idx_soft_locks_expires" json:"expires_at"`
	ReleasedAt *time.Time    `json:"released_at,omitempty"`
	ReleasedBy *snowflake.ID `json:"released_by,omitempty"`

	// Metadata carries the activity trail (last_action, last_action_at,
	// action_count).
	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (SoftLock) TableName() string { return "soft_locks" }

// Active reports whether the lock still confers exclusivity at now. Expiry
// is instantaneous; a lock is inactive the moment now reaches ExpiresAt even
// if no cleanup sweep has released it yet.
func (l *SoftLock) Active(now time.Time) bool {
	return l.ReleasedAt == nil && l.ExpiresAt.After(now)
}

// RecordActivity folds an action into the lock's activity metadata.
func (l *SoftLock) RecordActivity(action string, at time.Time) {
	if l.Metadata == nil {
		l.Metadata = datatypes.JSONMap{}
	}
	count := 0.0
	if v, ok := l.Metadata["action_count"].(float64); ok {
		count = v
	}
	l.Metadata["last_action"] = action
	l.Metadata["last_action_at"] = at.UTC().Format(time.RFC3339)
	l.Metadata["action_count"] = count + 1
}
