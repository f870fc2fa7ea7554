// Package scheduler runs the periodic maintenance sweeps. Its only core job
// is releasing expired soft locks; reads never depend on the sweep having
// run, so a stalled scheduler degrades bookkeeping, not correctness.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/craftcv/craftcv/internal/clock"
	"github.com/craftcv/craftcv/internal/config"
	lockdomain "github.com/craftcv/craftcv/internal/softlock/domain"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependencies")

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock
	Locks  lockdomain.Service
}

type Scheduler struct {
	log      *zap.Logger
	clock    clock.Clock
	locks    lockdomain.Service
	interval time.Duration
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Locks == nil {
		return nil, ErrInvalidConfig
	}
	interval := time.Duration(p.Config.LockCleanupIntervalSeconds) * time.Second
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		clock:    p.Clock,
		locks:    p.Locks,
		interval: interval,
	}, nil
}

// RunOnce executes a single sweep.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	released, err := s.locks.CleanupExpired(ctx)
	if err != nil {
		s.log.Error("lock cleanup sweep failed", zap.Error(err))
		return err
	}
	if released > 0 {
		s.log.Info("lock cleanup sweep finished", zap.Int64("released", released))
	}
	return nil
}

// RunForever loops RunOnce on the configured interval until ctx ends.
func (s *Scheduler) RunForever(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("lock cleanup sweep disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunOnce(ctx)
		}
	}
}
