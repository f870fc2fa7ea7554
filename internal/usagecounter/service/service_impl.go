package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftcv/craftcv/internal/clock"
	"github.com/craftcv/craftcv/internal/keyedmutex"
	"github.com/craftcv/craftcv/internal/usagecounter/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Limits domain.LimitResolver
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	limits domain.LimitResolver

	// counterLocks serializes increments per counter identity so the
	// breakdown merge cannot lose updates. The limit check itself is
	// additionally guarded by the conditional UPDATE in the repository.
	counterLocks *keyedmutex.KeyedMutex
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("usagecounter.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		limits:       p.Limits,
		counterLocks: keyedmutex.New(),
	}
}

func (s *Service) GetOrCreate(ctx context.Context, orgID snowflake.ID, counterType domain.CounterType, period domain.Period) (*domain.UsageCounter, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if !counterType.Valid() {
		return nil, domain.ErrInvalidCounterType
	}
	if !period.Valid() {
		return nil, domain.ErrInvalidPeriod
	}

	window := domain.WindowFor(period, s.clock.Now())
	return s.getOrCreate(ctx, orgID, counterType, period, window)
}

func (s *Service) Increment(ctx context.Context, req domain.IncrementRequest) (*domain.UsageCounter, error) {
	if req.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if !req.CounterType.Valid() {
		return nil, domain.ErrInvalidCounterType
	}
	if !req.Period.Valid() {
		return nil, domain.ErrInvalidPeriod
	}
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return nil, domain.ErrInvalidAmount
	}

	window := domain.WindowFor(req.Period, s.clock.Now())
	key := counterKey(req.OrgID, req.CounterType, req.Period, window)
	s.counterLocks.Lock(key)
	defer s.counterLocks.Unlock(key)

	counter, err := s.getOrCreate(ctx, req.OrgID, req.CounterType, req.Period, window)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.IncrementIfUnderLimit(ctx, s.db, counter, req.Amount)
	if err != nil {
		return nil, err
	}
	if !updated {
		// Re-read for an accurate current value in the error.
		current, err := s.repo.Find(ctx, s.db, req.OrgID, req.CounterType, req.Period, window)
		if err != nil {
			return nil, err
		}
		if current != nil {
			counter = current
		}
		return nil, &domain.LimitExceededError{
			CounterType: req.CounterType,
			Current:     counter.CurrentCount,
			Limit:       counter.Limit,
		}
	}

	if len(req.Breakdown) > 0 {
		if err := s.mergeBreakdown(ctx, req, window); err != nil {
			return nil, err
		}
	}

	return s.repo.Find(ctx, s.db, req.OrgID, req.CounterType, req.Period, window)
}

func (s *Service) Get(ctx context.Context, orgID snowflake.ID, counterType domain.CounterType, period domain.Period) (*domain.UsageCounter, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if !counterType.Valid() {
		return nil, domain.ErrInvalidCounterType
	}
	if !period.Valid() {
		return nil, domain.ErrInvalidPeriod
	}
	window := domain.WindowFor(period, s.clock.Now())
	return s.repo.Find(ctx, s.db, orgID, counterType, period, window)
}

func (s *Service) Reset(ctx context.Context, orgID snowflake.ID, period domain.Period) error {
	if orgID == 0 {
		return domain.ErrInvalidOrganization
	}
	if !period.Valid() {
		return domain.ErrInvalidPeriod
	}
	now := s.clock.Now()
	window := domain.WindowFor(period, now)
	return s.repo.ResetWindow(ctx, s.db, orgID, period, window, now.Format(time.RFC3339))
}

func (s *Service) getOrCreate(ctx context.Context, orgID snowflake.ID, counterType domain.CounterType, period domain.Period, window domain.Window) (*domain.UsageCounter, error) {
	existing, err := s.repo.Find(ctx, s.db, orgID, counterType, period, window)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	limit, err := s.limits.CounterLimit(ctx, orgID, counterType, period)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	counter := &domain.UsageCounter{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		CounterType:  counterType,
		Period:       period,
		PeriodStart:  window.Start,
		PeriodEnd:    window.End,
		CurrentCount: 0,
		Limit:        limit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.repo.CreateIfAbsent(ctx, s.db, counter); err != nil {
		return nil, err
	}
	// Lost the insert race or inserted: either way the row exists now.
	return s.repo.Find(ctx, s.db, orgID, counterType, period, window)
}

func (s *Service) mergeBreakdown(ctx context.Context, req domain.IncrementRequest, window domain.Window) error {
	counter, err := s.repo.Find(ctx, s.db, req.OrgID, req.CounterType, req.Period, window)
	if err != nil {
		return err
	}
	if counter == nil {
		return nil
	}
	if counter.Breakdown == nil {
		counter.Breakdown = datatypes.JSONMap{}
	}
	for key, delta := range req.Breakdown {
		counter.Breakdown[key] = asFloat(counter.Breakdown[key]) + delta
	}
	return s.repo.UpdateBreakdown(ctx, s.db, counter)
}

func asFloat(value any) float64 {
	switch typed := value.(type) {
	case float64:
		return typed
	case int64:
		return float64(typed)
	case int:
		return float64(typed)
	}
	return 0
}

func counterKey(orgID snowflake.ID, counterType domain.CounterType, period domain.Period, window domain.Window) string {
	return fmt.Sprintf("%d:%s:%s:%d", orgID, counterType, period, window.Start.Unix())
}
