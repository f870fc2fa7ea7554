// Package governance is the single entry point write handlers call before
// performing a protected action. It composes plan enforcement and soft
// locks; callers see one denial reason at a time, plan denials first.
package governance

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/craftcv/craftcv/internal/observability/metrics"
	plandomain "github.com/craftcv/craftcv/internal/planenforcement/domain"
	lockdomain "github.com/craftcv/craftcv/internal/softlock/domain"
)

type Service interface {
	// Authorize returns nil when the operation may proceed. It returns
	// *plandomain.ForbiddenError on a plan denial and *LockDeniedError on
	// a lock denial. Authorize does not increment usage; callers track
	// usage after the action succeeds.
	Authorize(ctx context.Context, req AuthorizeRequest) error
}

type AuthorizeRequest struct {
	OrgID     snowflake.ID
	UserID    snowflake.ID
	VariantID snowflake.ID
	Operation string
	LockType  lockdomain.LockType
	// Amount defaults to 1.
	Amount float64
}

// LockDeniedError reports a lock-based denial from Authorize.
type LockDeniedError struct {
	Reason string
	Lock   *lockdomain.SoftLock
}

func (e *LockDeniedError) Error() string { return e.Reason }

// ActionFor maps an operation onto the lock action it performs on the
// variant. Exports compete as exports; every other metered operation is an
// edit of the variant for locking purposes.
func ActionFor(operation string) string {
	switch operation {
	case "export":
		return "export"
	case "view", "read", "preview":
		return operation
	}
	return "edit"
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer plandomain.Service
	Locks    lockdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type service struct {
	log      *zap.Logger
	enforcer plandomain.Service
	locks    lockdomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) Service {
	return &service{
		log:      p.Log.Named("governance.facade"),
		enforcer: p.Enforcer,
		locks:    p.Locks,
		metrics:  p.Metrics,
	}
}

func (s *service) Authorize(ctx context.Context, req AuthorizeRequest) error {
	amount := req.Amount
	if amount == 0 {
		amount = 1
	}

	// Plan first: a user over quota hears about quota even when they also
	// lack the lock.
	if err := s.enforcer.Enforce(ctx, req.OrgID, req.Operation, amount); err != nil {
		var forbidden *plandomain.ForbiddenError
		if errors.As(err, &forbidden) {
			s.metrics.RecordAuthorize(req.Operation, "denied_plan")
			s.metrics.RecordLimitDenial(denialCheck(forbidden))
			s.log.Info("authorize denied by plan",
				zap.String("org_id", req.OrgID.String()),
				zap.String("operation", req.Operation),
				zap.String("reason", forbidden.Error()),
			)
		}
		return err
	}

	result, err := s.locks.CheckPermission(ctx, lockdomain.PermissionRequest{
		OrgID:     req.OrgID,
		UserID:    req.UserID,
		VariantID: req.VariantID,
		Action:    ActionFor(req.Operation),
	})
	if err != nil {
		return err
	}
	if !result.HasPermission {
		s.metrics.RecordAuthorize(req.Operation, "denied_lock")
		s.log.Info("authorize denied by lock",
			zap.String("org_id", req.OrgID.String()),
			zap.String("variant_id", req.VariantID.String()),
			zap.String("operation", req.Operation),
			zap.String("reason", result.Reason),
		)
		return &LockDeniedError{Reason: result.Reason, Lock: result.Lock}
	}

	s.metrics.RecordAuthorize(req.Operation, "allowed")
	return nil
}

func denialCheck(err *plandomain.ForbiddenError) string {
	if strings.HasPrefix(err.Result.Reason, "seat") {
		return "seat"
	}
	return "usage"
}
