package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/craftcv/craftcv/internal/billing/domain"
	"github.com/craftcv/craftcv/internal/clock"
	"github.com/craftcv/craftcv/internal/observability/metrics"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type tracker struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *metrics.Metrics
}

func New(p Params) domain.Tracker {
	return &tracker{
		db:      p.DB,
		log:     p.Log.Named("billing.tracker"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// TrackOverage persists an overage event. Errors are logged, never
// returned: a billing hiccup must not block the operation it bills for.
func (t *tracker) TrackOverage(ctx context.Context, req domain.OverageRequest) {
	if req.OrgID == 0 || req.Quantity <= 0 {
		t.log.Warn("dropping malformed overage event",
			zap.String("org_id", req.OrgID.String()),
			zap.Float64("quantity", req.Quantity),
		)
		return
	}

	meta := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		meta[k] = v
	}

	event := &domain.OverageEvent{
		ID:          t.genID.Generate(),
		OrgID:       req.OrgID,
		CounterType: req.CounterType,
		Operation:   req.Operation,
		Quantity:    req.Quantity,
		Rate:        req.Rate,
		Cost:        req.Quantity * req.Rate,
		OccurredAt:  t.clock.Now(),
		Metadata:    meta,
	}

	if err := t.repo.Create(ctx, t.db, event); err != nil {
		t.log.Error("failed to record overage event",
			zap.String("org_id", req.OrgID.String()),
			zap.String("counter_type", string(req.CounterType)),
			zap.Error(err),
		)
		return
	}

	t.metrics.RecordOverage(string(req.CounterType))
	t.log.Info("overage tracked",
		zap.String("org_id", req.OrgID.String()),
		zap.String("counter_type", string(req.CounterType)),
		zap.Float64("quantity", req.Quantity),
		zap.Float64("cost", event.Cost),
	)
}

func (t *tracker) ListByOrg(ctx context.Context, orgID snowflake.ID, since time.Time) ([]domain.OverageEvent, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return t.repo.ListByOrg(ctx, t.db, orgID, since)
}

func (t *tracker) Summary(ctx context.Context, orgID snowflake.ID, since time.Time) (*domain.OverageSummary, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	events, total, err := t.repo.SumCost(ctx, t.db, orgID, since)
	if err != nil {
		return nil, err
	}
	return &domain.OverageSummary{
		OrgID:     orgID.String(),
		Events:    int(events),
		TotalCost: total,
	}, nil
}
