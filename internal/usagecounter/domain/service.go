package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// GetOrCreate returns the counter for the window containing now,
	// creating it with a zero count and the org's current plan limit.
	GetOrCreate(ctx context.Context, orgID snowflake.ID, counterType CounterType, period Period) (*UsageCounter, error)

	// Increment atomically adds amount to the current-window counter,
	// failing with *LimitExceededError (counter untouched) when the new
	// count would pass the limit. Breakdown keys merge additively.
	Increment(ctx context.Context, req IncrementRequest) (*UsageCounter, error)

	// Get returns the current-window counter, or nil when none exists.
	Get(ctx context.Context, orgID snowflake.ID, counterType CounterType, period Period) (*UsageCounter, error)

	// Reset zeroes every counter of the org for the current window of
	// period and clears breakdowns, stamping last_reset_at.
	Reset(ctx context.Context, orgID snowflake.ID, period Period) error
}

type IncrementRequest struct {
	OrgID       snowflake.ID
	CounterType CounterType
	Period      Period
	Amount      float64
	Breakdown   map[string]float64
}

// LimitResolver supplies the plan limit a new counter row is created with.
// Implemented by the plan enforcement service; kept as an interface so the
// counter store has no dependency on plan records.
type LimitResolver interface {
	CounterLimit(ctx context.Context, orgID snowflake.ID, counterType CounterType, period Period) (float64, error)
}

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, counterType CounterType, period Period, window Window) (*UsageCounter, error)
	// CreateIfAbsent inserts the row unless the unique window tuple
	// already exists; returns true when a row was inserted.
	CreateIfAbsent(ctx context.Context, db *gorm.DB, counter *UsageCounter) (bool, error)
	// IncrementIfUnderLimit performs the conditional single-statement
	// update; returns false without mutating when the limit would be
	// exceeded.
	IncrementIfUnderLimit(ctx context.Context, db *gorm.DB, counter *UsageCounter, amount float64) (bool, error)
	UpdateBreakdown(ctx context.Context, db *gorm.DB, counter *UsageCounter) error
	ResetWindow(ctx context.Context, db *gorm.DB, orgID snowflake.ID, period Period, window Window, resetAt string) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidCounterType  = errors.New("invalid_counter_type")
	ErrInvalidPeriod       = errors.New("invalid_period")
	ErrInvalidAmount       = errors.New("invalid_amount")
)
