package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/craftcv/craftcv/internal/clock"
	"github.com/craftcv/craftcv/internal/usagecounter/domain"
	"github.com/craftcv/craftcv/internal/usagecounter/repository"
)

type stubLimits struct {
	limit float64
}

func (s stubLimits) CounterLimit(ctx context.Context, orgID snowflake.ID, counterType domain.CounterType, period domain.Period) (float64, error) {
	return s.limit, nil
}

func newTestService(t *testing.T, limit float64, fake *clock.FakeClock) domain.Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&domain.UsageCounter{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	return New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Repo:   repository.Provide(),
		Limits: stubLimits{limit: limit},
	})
}

func TestIncrementUnderLimit(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, 200, fake)
	ctx := context.Background()

	counter, err := svc.Increment(ctx, domain.IncrementRequest{
		OrgID:       1,
		CounterType: domain.CounterExports,
		Period:      domain.PeriodMonthly,
		Amount:      3,
	})
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if counter.CurrentCount != 3 {
		t.Fatalf("current = %v, want 3", counter.CurrentCount)
	}
	if counter.Limit != 200 {
		t.Fatalf("limit = %v, want 200", counter.Limit)
	}
}

func TestIncrementAtLimitFailsAndLeavesCounterUntouched(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, 5, fake)
	ctx := context.Background()

	if _, err := svc.Increment(ctx, domain.IncrementRequest{
		OrgID: 1, CounterType: domain.CounterExports, Period: domain.PeriodMonthly, Amount: 5,
	}); err != nil {
		t.Fatalf("first increment: %v", err)
	}

	_, err := svc.Increment(ctx, domain.IncrementRequest{
		OrgID: 1, CounterType: domain.CounterExports, Period: domain.PeriodMonthly, Amount: 1,
	})
	var limitErr *domain.LimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitExceededError, got %v", err)
	}
	if limitErr.Current != 5 || limitErr.Limit != 5 {
		t.Fatalf("error current/limit = %v/%v, want 5/5", limitErr.Current, limitErr.Limit)
	}

	counter, err := svc.Get(ctx, 1, domain.CounterExports, domain.PeriodMonthly)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if counter.CurrentCount != 5 {
		t.Fatalf("counter mutated on failed increment: %v", counter.CurrentCount)
	}
}

func TestConcurrentIncrementsNeverOverrun(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, 50, fake)
	ctx := context.Background()

	const callers = 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	denied := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Increment(ctx, domain.IncrementRequest{
				OrgID: 1, CounterType: domain.CounterExports, Period: domain.PeriodMonthly, Amount: 1,
			})
			if err != nil {
				var limitErr *domain.LimitExceededError
				if !errors.As(err, &limitErr) {
					t.Errorf("unexpected error: %v", err)
					return
				}
				mu.Lock()
				denied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	counter, err := svc.Get(ctx, 1, domain.CounterExports, domain.PeriodMonthly)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if counter.CurrentCount != 50 {
		t.Fatalf("count overran limit: %v", counter.CurrentCount)
	}
	if denied != callers-50 {
		t.Fatalf("denied = %d, want %d", denied, callers-50)
	}
}

func TestBreakdownMergesAdditively(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, 100, fake)
	ctx := context.Background()

	if _, err := svc.Increment(ctx, domain.IncrementRequest{
		OrgID: 1, CounterType: domain.CounterExports, Period: domain.PeriodMonthly,
		Amount: 1, Breakdown: map[string]float64{"pdf": 1},
	}); err != nil {
		t.Fatalf("increment: %v", err)
	}
	counter, err := svc.Increment(ctx, domain.IncrementRequest{
		OrgID: 1, CounterType: domain.CounterExports, Period: domain.PeriodMonthly,
		Amount: 3, Breakdown: map[string]float64{"pdf": 2, "docx": 1},
	})
	if err != nil {
		t.Fatalf("increment: %v", err)
	}

	if got := counter.Breakdown["pdf"]; got != float64(3) {
		t.Fatalf("pdf breakdown = %v, want 3", got)
	}
	if got := counter.Breakdown["docx"]; got != float64(1) {
		t.Fatalf("docx breakdown = %v, want 1", got)
	}
	if counter.CurrentCount != 4 {
		t.Fatalf("count = %v, want 4", counter.CurrentCount)
	}
}

func TestResetZeroesCurrentWindow(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, 100, fake)
	ctx := context.Background()

	if _, err := svc.Increment(ctx, domain.IncrementRequest{
		OrgID: 1, CounterType: domain.CounterExports, Period: domain.PeriodMonthly,
		Amount: 7, Breakdown: map[string]float64{"pdf": 7},
	}); err != nil {
		t.Fatalf("increment: %v", err)
	}

	if err := svc.Reset(ctx, 1, domain.PeriodMonthly); err != nil {
		t.Fatalf("reset: %v", err)
	}

	counter, err := svc.Get(ctx, 1, domain.CounterExports, domain.PeriodMonthly)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if counter.CurrentCount != 0 {
		t.Fatalf("count after reset = %v, want 0", counter.CurrentCount)
	}
	if len(counter.Breakdown) != 0 {
		t.Fatalf("breakdown after reset = %v, want empty", counter.Breakdown)
	}
	if counter.Metadata["last_reset_at"] == nil {
		t.Fatal("expected last_reset_at in metadata")
	}
}

func TestPeriodRolloverStartsFreshCounter(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC))
	svc := newTestService(t, 100, fake)
	ctx := context.Background()

	if _, err := svc.Increment(ctx, domain.IncrementRequest{
		OrgID: 1, CounterType: domain.CounterExports, Period: domain.PeriodMonthly, Amount: 9,
	}); err != nil {
		t.Fatalf("increment: %v", err)
	}

	fake.Advance(2 * time.Hour) // into April

	counter, err := svc.GetOrCreate(ctx, 1, domain.CounterExports, domain.PeriodMonthly)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if counter.CurrentCount != 0 {
		t.Fatalf("new window count = %v, want 0", counter.CurrentCount)
	}
	if counter.PeriodStart.Month() != time.April {
		t.Fatalf("period start = %v, want April", counter.PeriodStart)
	}
}

func TestIncrementValidation(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, 100, fake)
	ctx := context.Background()

	if _, err := svc.Increment(ctx, domain.IncrementRequest{
		OrgID: 0, CounterType: domain.CounterExports, Period: domain.PeriodMonthly, Amount: 1,
	}); !errors.Is(err, domain.ErrInvalidOrganization) {
		t.Fatalf("expected invalid organization, got %v", err)
	}
	if _, err := svc.Increment(ctx, domain.IncrementRequest{
		OrgID: 1, CounterType: "widgets", Period: domain.PeriodMonthly, Amount: 1,
	}); !errors.Is(err, domain.ErrInvalidCounterType) {
		t.Fatalf("expected invalid counter type, got %v", err)
	}
	if _, err := svc.Increment(ctx, domain.IncrementRequest{
		OrgID: 1, CounterType: domain.CounterExports, Period: domain.PeriodMonthly, Amount: -1,
	}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}
