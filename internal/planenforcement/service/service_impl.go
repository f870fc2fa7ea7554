package service

import (
	"context"
	"fmt"
	"math"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/craftcv/craftcv/internal/billing/domain"
	"github.com/craftcv/craftcv/internal/clock"
	"github.com/craftcv/craftcv/internal/config"
	"github.com/craftcv/craftcv/internal/plancatalog"
	"github.com/craftcv/craftcv/internal/planenforcement/domain"
	usagedomain "github.com/craftcv/craftcv/internal/usagecounter/domain"
)

type Params struct {
	fx.In

	Config  config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Catalog plancatalog.Catalog
	Seats   domain.SeatCounter
	Usage   usagedomain.Repository
	Billing billingdomain.Tracker
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	catalog plancatalog.Catalog
	seats   domain.SeatCounter
	usage   usagedomain.Repository
	billing billingdomain.Tracker

	// period is the single process-wide window used for usage checks.
	// It is deliberately not derived from the operation.
	period usagedomain.Period
}

func New(p Params) domain.Service {
	period := usagedomain.Period(p.Config.EnforcementPeriod)
	if !period.Valid() {
		period = usagedomain.PeriodMonthly
	}
	return &service{
		db:      p.DB,
		log:     p.Log.Named("planenforcement.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
		seats:   p.Seats,
		usage:   p.Usage,
		billing: p.Billing,
		period:  period,
	}
}

func (s *service) EnsureRecord(ctx context.Context, orgID snowflake.ID, planType plancatalog.PlanType) (*domain.PlanEnforcementRecord, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	existing, err := s.repo.FindByOrg(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	plan := plancatalog.NormalizePlanType(string(planType))
	record := &domain.PlanEnforcementRecord{
		ID:                s.genID.Generate(),
		OrgID:             orgID,
		PlanType:          plan,
		Limits:            s.catalog.LimitsFor(plan),
		OverageRates:      s.catalog.OverageRatesFor(plan),
		EnforceSeatLimit:  true,
		EnforceUsageLimit: true,
		AllowOverage:      false,
	}
	inserted, err := s.repo.CreateIfAbsent(ctx, s.db, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost the race to a concurrent signup; read the winner.
		return s.GetRecord(ctx, orgID)
	}

	s.log.Info("plan enforcement record created",
		zap.String("org_id", orgID.String()),
		zap.String("plan_type", string(plan)),
	)
	return record, nil
}

func (s *service) GetRecord(ctx context.Context, orgID snowflake.ID) (*domain.PlanEnforcementRecord, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	record, err := s.repo.FindByOrg(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrRecordNotFound
	}
	return record, nil
}

func (s *service) UpdateRecord(ctx context.Context, req domain.UpdateRequest) (*domain.PlanEnforcementRecord, error) {
	record, err := s.GetRecord(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}

	if req.PlanType != nil {
		plan := plancatalog.NormalizePlanType(string(*req.PlanType))
		record.PlanType = plan
		record.Limits = s.catalog.LimitsFor(plan)
		record.OverageRates = s.catalog.OverageRatesFor(plan)
	}
	if req.Limits != nil {
		record.Limits = *req.Limits
	}
	if req.OverageRates != nil {
		record.OverageRates = *req.OverageRates
	}
	if req.EnforceSeatLimit != nil {
		record.EnforceSeatLimit = *req.EnforceSeatLimit
	}
	if req.EnforceUsageLimit != nil {
		record.EnforceUsageLimit = *req.EnforceUsageLimit
	}
	if req.AllowOverage != nil {
		record.AllowOverage = *req.AllowOverage
	}
	if req.PlanExpiresAt != nil {
		record.PlanExpiresAt = req.PlanExpiresAt
	}
	if req.ClearExpiry {
		record.PlanExpiresAt = nil
	}

	if err := s.repo.Update(ctx, s.db, record); err != nil {
		return nil, err
	}
	s.log.Info("plan enforcement record updated",
		zap.String("org_id", req.OrgID.String()),
		zap.String("plan_type", string(record.PlanType)),
	)
	return record, nil
}

// effectiveTerms returns the limits and rates to enforce, downgrading an
// expired plan to the free tier until it is renewed.
func (s *service) effectiveTerms(record *domain.PlanEnforcementRecord) (plancatalog.Limits, plancatalog.OverageRates) {
	if record.PlanExpiresAt != nil && !s.clock.Now().Before(*record.PlanExpiresAt) {
		return s.catalog.LimitsFor(plancatalog.PlanFree), s.catalog.OverageRatesFor(plancatalog.PlanFree)
	}
	return record.Limits, record.OverageRates
}

func (s *service) CheckSeatLimit(ctx context.Context, orgID snowflake.ID) (*domain.EnforcementResult, error) {
	record, err := s.GetRecord(ctx, orgID)
	if err != nil {
		return nil, err
	}
	limits, rates := s.effectiveTerms(record)

	currentSeats, err := s.seats.CountActiveSeats(ctx, orgID)
	if err != nil {
		return nil, err
	}

	result := &domain.EnforcementResult{
		Allowed: true,
		Current: float64(currentSeats),
		Limit:   float64(limits.Seats),
	}
	if !record.EnforceSeatLimit || currentSeats < limits.Seats {
		return result, nil
	}

	if record.AllowOverage {
		result.OverageAmount = float64(currentSeats - limits.Seats)
		result.OverageCost = roundCents(result.OverageAmount * rates[usagedomain.CounterUsers])
		return result, nil
	}

	result.Allowed = false
	result.Reason = fmt.Sprintf("seat limit exceeded: %d of %d seats used", currentSeats, limits.Seats)
	return result, nil
}

func (s *service) CheckUsageLimit(ctx context.Context, orgID snowflake.ID, operation string, amount float64) (*domain.EnforcementResult, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	counterType := usagedomain.CounterTypeForOperation(operation)
	if !counterType.Valid() {
		return nil, domain.ErrInvalidOperation
	}

	record, err := s.GetRecord(ctx, orgID)
	if err != nil {
		return nil, err
	}
	limits, rates := s.effectiveTerms(record)

	window := usagedomain.WindowFor(s.period, s.clock.Now())
	counter, err := s.usage.Find(ctx, s.db, orgID, counterType, s.period, window)
	if err != nil {
		return nil, err
	}
	current := 0.0
	if counter != nil {
		current = counter.CurrentCount
	}
	limit := limits.CounterLimit(counterType, s.period)

	result := &domain.EnforcementResult{
		Allowed: true,
		Current: current,
		Limit:   limit,
	}
	if !record.EnforceUsageLimit || current+amount <= limit {
		return result, nil
	}

	if record.AllowOverage {
		result.OverageAmount = current + amount - limit
		result.OverageCost = roundCents(result.OverageAmount * rates[counterType])
		return result, nil
	}

	result.Allowed = false
	result.Reason = fmt.Sprintf("%s limit exceeded: %v of %v used, requested %v", operation, current, limit, amount)
	return result, nil
}

func (s *service) Enforce(ctx context.Context, orgID snowflake.ID, operation string, amount float64) error {
	seatResult, err := s.CheckSeatLimit(ctx, orgID)
	if err != nil {
		return err
	}
	if !seatResult.Allowed {
		return &domain.ForbiddenError{Result: seatResult}
	}

	usageResult, err := s.CheckUsageLimit(ctx, orgID, operation, amount)
	if err != nil {
		return err
	}
	if !usageResult.Allowed {
		return &domain.ForbiddenError{Result: usageResult}
	}

	if seatResult.OverageAmount > 0 {
		s.billing.TrackOverage(ctx, billingdomain.OverageRequest{
			OrgID:       orgID,
			CounterType: usagedomain.CounterUsers,
			Operation:   "seat",
			Quantity:    seatResult.OverageAmount,
			Rate:        seatCostRate(seatResult),
		})
	}
	if usageResult.OverageAmount > 0 {
		s.billing.TrackOverage(ctx, billingdomain.OverageRequest{
			OrgID:       orgID,
			CounterType: usagedomain.CounterTypeForOperation(operation),
			Operation:   operation,
			Quantity:    usageResult.OverageAmount,
			Rate:        usageResult.OverageCost / usageResult.OverageAmount,
		})
	}
	return nil
}

func (s *service) IsFeatureEnabled(ctx context.Context, orgID snowflake.ID, feature string) (bool, error) {
	record, err := s.GetRecord(ctx, orgID)
	if err != nil {
		return false, err
	}
	limits, _ := s.effectiveTerms(record)
	return limits.HasFeature(feature), nil
}

// CounterLimit supplies the limit a new counter row snapshots. Orgs without
// an enforcement record yet fall back to the free tier.
func (s *service) CounterLimit(ctx context.Context, orgID snowflake.ID, counterType usagedomain.CounterType, period usagedomain.Period) (float64, error) {
	record, err := s.repo.FindByOrg(ctx, s.db, orgID)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return s.catalog.LimitsFor(plancatalog.PlanFree).CounterLimit(counterType, period), nil
	}
	limits, _ := s.effectiveTerms(record)
	return limits.CounterLimit(counterType, period), nil
}

func seatCostRate(result *domain.EnforcementResult) float64 {
	if result.OverageAmount == 0 {
		return 0
	}
	return result.OverageCost / result.OverageAmount
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
