package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/craftcv/craftcv/internal/plancatalog"
	usagedomain "github.com/craftcv/craftcv/internal/usagecounter/domain"
)

// EnforcementResult is the structured outcome of a single limit check.
// OverageAmount/OverageCost are only set when overage made the difference
// between deny and allow.
type EnforcementResult struct {
	Allowed       bool    `json:"allowed"`
	Reason        string  `json:"reason,omitempty"`
	Current       float64 `json:"current"`
	Limit         float64 `json:"limit"`
	OverageAmount float64 `json:"overage_amount,omitempty"`
	OverageCost   float64 `json:"overage_cost,omitempty"`
}

type Service interface {
	// EnsureRecord returns the org's enforcement record, creating one from
	// the catalog terms for planType when none exists yet.
	EnsureRecord(ctx context.Context, orgID snowflake.ID, planType plancatalog.PlanType) (*PlanEnforcementRecord, error)
	GetRecord(ctx context.Context, orgID snowflake.ID) (*PlanEnforcementRecord, error)
	UpdateRecord(ctx context.Context, req UpdateRequest) (*PlanEnforcementRecord, error)

	CheckSeatLimit(ctx context.Context, orgID snowflake.ID) (*EnforcementResult, error)
	CheckUsageLimit(ctx context.Context, orgID snowflake.ID, operation string, amount float64) (*EnforcementResult, error)

	// Enforce runs the seat check, then the usage check, and returns
	// *ForbiddenError from the first one that disallows. Permitted overage
	// is reported to the billing tracker; a tracking failure never blocks
	// the operation.
	Enforce(ctx context.Context, orgID snowflake.ID, operation string, amount float64) error

	IsFeatureEnabled(ctx context.Context, orgID snowflake.ID, feature string) (bool, error)

	// CounterLimit implements the counter store's limit resolver.
	CounterLimit(ctx context.Context, orgID snowflake.ID, counterType usagedomain.CounterType, period usagedomain.Period) (float64, error)
}

// UpdateRequest patches an enforcement record. A plan change re-derives
// limits and rates from the catalog unless explicit overrides accompany it.
type UpdateRequest struct {
	OrgID             snowflake.ID
	PlanType          *plancatalog.PlanType
	Limits            *plancatalog.Limits
	OverageRates      *plancatalog.OverageRates
	EnforceSeatLimit  *bool
	EnforceUsageLimit *bool
	AllowOverage      *bool
	PlanExpiresAt     *time.Time
	ClearExpiry       bool
}

// SeatCounter supplies the live count of active members in an org.
type SeatCounter interface {
	CountActiveSeats(ctx context.Context, orgID snowflake.ID) (int, error)
}

type Repository interface {
	FindByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*PlanEnforcementRecord, error)
	// CreateIfAbsent inserts unless a record for the org exists; returns
	// true when a row was inserted.
	CreateIfAbsent(ctx context.Context, db *gorm.DB, record *PlanEnforcementRecord) (bool, error)
	Update(ctx context.Context, db *gorm.DB, record *PlanEnforcementRecord) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidOperation    = errors.New("invalid_operation")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrRecordNotFound      = errors.New("plan_record_not_found")
)

// ForbiddenError is raised by Enforce when a check disallows the operation.
type ForbiddenError struct {
	Result *EnforcementResult
}

func (e *ForbiddenError) Error() string { return e.Result.Reason }
