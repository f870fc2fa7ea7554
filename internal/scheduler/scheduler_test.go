package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/craftcv/craftcv/internal/clock"
	"github.com/craftcv/craftcv/internal/config"
	lockdomain "github.com/craftcv/craftcv/internal/softlock/domain"
)

type stubLockService struct {
	lockdomain.Service

	calls    atomic.Int64
	released int64
	err      error
}

func (s *stubLockService) CleanupExpired(ctx context.Context) (int64, error) {
	s.calls.Add(1)
	return s.released, s.err
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Config: config.Config{}})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunOnceSweeps(t *testing.T) {
	locks := &stubLockService{released: 3}
	s, err := New(Params{
		Config: config.Config{LockCleanupIntervalSeconds: 60},
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)),
		Locks:  locks,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if locks.calls.Load() != 1 {
		t.Fatalf("cleanup calls = %d, want 1", locks.calls.Load())
	}
}

func TestRunOnceSurfacesError(t *testing.T) {
	wantErr := errors.New("db down")
	locks := &stubLockService{err: wantErr}
	s, err := New(Params{
		Config: config.Config{LockCleanupIntervalSeconds: 60},
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)),
		Locks:  locks,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := s.RunOnce(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected the sweep error, got %v", err)
	}
}

func TestRunForeverDisabledWithoutInterval(t *testing.T) {
	locks := &stubLockService{}
	s, err := New(Params{
		Config: config.Config{LockCleanupIntervalSeconds: 0},
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)),
		Locks:  locks,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.RunForever(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunForever should return immediately when disabled")
	}
	if locks.calls.Load() != 0 {
		t.Fatalf("cleanup ran %d times, want 0", locks.calls.Load())
	}
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	locks := &stubLockService{}
	s, err := New(Params{
		Config: config.Config{LockCleanupIntervalSeconds: 1},
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)),
		Locks:  locks,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunForever(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunForever did not stop on cancel")
	}
}
