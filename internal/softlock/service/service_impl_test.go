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
	"github.com/craftcv/craftcv/internal/config"
	"github.com/craftcv/craftcv/internal/softlock/domain"
	"github.com/craftcv/craftcv/internal/softlock/repository"
)

type lockFixture struct {
	svc  domain.Service
	fake *clock.FakeClock
}

func newLockFixture(t *testing.T) *lockFixture {
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
	if err := db.AutoMigrate(&domain.SoftLock{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	fake := clock.NewFakeClock(time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC))
	svc := New(Params{
		Config: config.Config{LockDefaultMinutes: 30},
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Repo:   repository.Provide(),
	})
	return &lockFixture{svc: svc, fake: fake}
}

func TestAcquireSetsExpiry(t *testing.T) {
	f := newLockFixture(t)
	ctx := context.Background()

	lock, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockEdit,
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if lock.LockType != domain.LockEdit {
		t.Fatalf("lock type = %v, want edit", lock.LockType)
	}
	if got, want := lock.ExpiresAt, f.fake.Now().Add(30*time.Minute); !got.Equal(want) {
		t.Fatalf("expires at = %v, want %v", got, want)
	}
	if !lock.Active(f.fake.Now()) {
		t.Fatal("freshly acquired lock should be active")
	}
}

func TestAcquireConflictsWithEqualOrLowerPriority(t *testing.T) {
	f := newLockFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockReview,
	}); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	for _, requested := range []domain.LockType{domain.LockEdit, domain.LockReview} {
		_, err := f.svc.Acquire(ctx, domain.AcquireRequest{
			OrgID: 1, UserID: 20, VariantID: 100, LockType: requested,
		})
		var conflict *domain.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("acquire %s: expected ConflictError, got %v", requested, err)
		}
		if conflict.Held != domain.LockReview {
			t.Fatalf("held = %v, want review", conflict.Held)
		}
	}
}

func TestAcquireHigherPriorityOverrides(t *testing.T) {
	f := newLockFixture(t)
	ctx := context.Background()

	held, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockEdit,
	})
	if err != nil {
		t.Fatalf("acquire edit: %v", err)
	}

	export, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 20, VariantID: 100, LockType: domain.LockExport,
	})
	if err != nil {
		t.Fatalf("acquire export over edit: %v", err)
	}
	if export.UserID != 20 {
		t.Fatalf("new holder = %v, want 20", export.UserID)
	}

	released, err := f.svc.GetByID(ctx, held.ID)
	if err != nil {
		t.Fatalf("get released lock: %v", err)
	}
	if released.ReleasedAt == nil {
		t.Fatal("overridden lock should be released")
	}
	if released.Reason != domain.ReasonOverride {
		t.Fatalf("reason = %q, want %q", released.Reason, domain.ReasonOverride)
	}

	// The override is one-directional: edit cannot displace export.
	_, err = f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockEdit,
	})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError acquiring edit over export, got %v", err)
	}
}

func TestAcquireSameUserRenews(t *testing.T) {
	f := newLockFixture(t)
	ctx := context.Background()

	first, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockEdit, DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	renewed, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockEdit, DurationMinutes: 15,
	})
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if renewed.ID != first.ID {
		t.Fatalf("renewal created a new lock: %v != %v", renewed.ID, first.ID)
	}
	if got, want := renewed.ExpiresAt, first.AcquiredAt.Add(45*time.Minute); !got.Equal(want) {
		t.Fatalf("expires at = %v, want %v (30m + 15m renewal)", got, want)
	}
}

func TestReleaseByNonOwnerFails(t *testing.T) {
	f := newLockFixture(t)
	ctx := context.Background()

	lock, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockEdit,
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := f.svc.Release(ctx, lock.ID, 20); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	released, err := f.svc.Release(ctx, lock.ID, 10)
	if err != nil {
		t.Fatalf("release by owner: %v", err)
	}
	if released.ReleasedAt == nil {
		t.Fatal("expected released_at set")
	}

	if _, err := f.svc.Release(ctx, lock.ID, 10); !errors.Is(err, domain.ErrAlreadyReleased) {
		t.Fatalf("expected ErrAlreadyReleased, got %v", err)
	}
}

func TestExtendCompoundsFromCurrentExpiry(t *testing.T) {
	f := newLockFixture(t)
	ctx := context.Background()

	lock, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockEdit, DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	extended, err := f.svc.Extend(ctx, lock.ID, 10)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	extended, err = f.svc.Extend(ctx, lock.ID, 10)
	if err != nil {
		t.Fatalf("extend again: %v", err)
	}
	if got, want := extended.ExpiresAt, lock.AcquiredAt.Add(50*time.Minute); !got.Equal(want) {
		t.Fatalf("expires at = %v, want %v", got, want)
	}
}

func TestExtendReleasedLockFails(t *testing.T) {
	f := newLockFixture(t)
	ctx := context.Background()

	lock, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockEdit,
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := f.svc.Release(ctx, lock.ID, 10); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, err := f.svc.Extend(ctx, lock.ID, 10); !errors.Is(err, domain.ErrAlreadyReleased) {
		t.Fatalf("expected ErrAlreadyReleased, got %v", err)
	}
}

func TestForceReleaseDefaultReasonAndIdempotence(t *testing.T) {
	f := newLockFixture(t)
	ctx := context.Background()

	lock, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockApproval,
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	released, err := f.svc.ForceRelease(ctx, lock.ID, 99, "")
	if err != nil {
		t.Fatalf("force release: %v", err)
	}
	if released.Reason != domain.ReasonForceDefault {
		t.Fatalf("reason = %q, want %q", released.Reason, domain.ReasonForceDefault)
	}
	if released.ReleasedBy == nil || *released.ReleasedBy != 99 {
		t.Fatalf("released_by = %v, want 99", released.ReleasedBy)
	}

	again, err := f.svc.ForceRelease(ctx, lock.ID, 42, "unused")
	if err != nil {
		t.Fatalf("second force release: %v", err)
	}
	if again.Reason != domain.ReasonForceDefault {
		t.Fatalf("second call mutated the lock: reason %q", again.Reason)
	}
}

func TestExpiryIsInstantaneous(t *testing.T) {
	f := newLockFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockEdit, DurationMinutes: 30,
	}); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	f.fake.Advance(31 * time.Minute)

	// No cleanup has run, but the expired lock no longer blocks anyone.
	result, err := f.svc.CheckPermission(ctx, domain.PermissionRequest{
		OrgID: 1, UserID: 20, VariantID: 100, Action: "edit",
	})
	if err != nil {
		t.Fatalf("check permission: %v", err)
	}
	if !result.HasPermission {
		t.Fatalf("expired lock should not block: %q", result.Reason)
	}

	if _, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 20, VariantID: 100, LockType: domain.LockEdit,
	}); err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
}

func TestCleanupExpiredIsIdempotent(t *testing.T) {
	f := newLockFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockEdit, DurationMinutes: 10,
	}); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 200, LockType: domain.LockReview, DurationMinutes: 10,
	}); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	f.fake.Advance(11 * time.Minute)

	released, err := f.svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if released != 2 {
		t.Fatalf("released = %d, want 2", released)
	}

	expired, err := f.svc.ListExpired(ctx)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("expired after cleanup = %d, want 0", len(expired))
	}

	released, err = f.svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
	if released != 0 {
		t.Fatalf("second cleanup released %d, want 0", released)
	}
}

func TestCheckPermissionRules(t *testing.T) {
	f := newLockFixture(t)
	ctx := context.Background()

	// No lock at all: allowed.
	result, err := f.svc.CheckPermission(ctx, domain.PermissionRequest{
		OrgID: 1, UserID: 20, VariantID: 100, Action: "edit",
	})
	if err != nil {
		t.Fatalf("check permission: %v", err)
	}
	if !result.HasPermission || result.Lock != nil {
		t.Fatal("unlocked variant should be writable by anyone")
	}

	if _, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockEdit,
		Scope: &domain.LockScope{ReadOnly: true},
	}); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Holder can do anything.
	result, err = f.svc.CheckPermission(ctx, domain.PermissionRequest{
		OrgID: 1, UserID: 10, VariantID: 100, Action: "edit",
	})
	if err != nil {
		t.Fatalf("check permission: %v", err)
	}
	if !result.HasPermission {
		t.Fatalf("holder denied: %q", result.Reason)
	}

	// Read actions pass through for anyone.
	for _, action := range []string{"view", "read", "preview"} {
		result, err = f.svc.CheckPermission(ctx, domain.PermissionRequest{
			OrgID: 1, UserID: 20, VariantID: 100, Action: action,
		})
		if err != nil {
			t.Fatalf("check permission %s: %v", action, err)
		}
		if !result.HasPermission {
			t.Fatalf("read action %s denied: %q", action, result.Reason)
		}
	}

	// Read-only scope blocks writes from other users.
	result, err = f.svc.CheckPermission(ctx, domain.PermissionRequest{
		OrgID: 1, UserID: 20, VariantID: 100, Action: "edit",
	})
	if err != nil {
		t.Fatalf("check permission: %v", err)
	}
	if result.HasPermission {
		t.Fatal("read-only scope should deny another user's write")
	}
	if result.Lock == nil {
		t.Fatal("denial should carry the blocking lock")
	}
}

func TestCheckPermissionAdvisoryScopeAllows(t *testing.T) {
	f := newLockFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Acquire(ctx, domain.AcquireRequest{
		OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockEdit,
		Scope: &domain.LockScope{Sections: []string{"experience"}},
	}); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	result, err := f.svc.CheckPermission(ctx, domain.PermissionRequest{
		OrgID: 1, UserID: 20, VariantID: 100, Action: "edit",
	})
	if err != nil {
		t.Fatalf("check permission: %v", err)
	}
	if !result.HasPermission {
		t.Fatalf("section scope is advisory, expected allow: %q", result.Reason)
	}
	if result.Lock == nil {
		t.Fatal("advisory allow should still surface the lock")
	}
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	f := newLockFixture(t)
	ctx := context.Background()

	const contenders = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < contenders; i++ {
		userID := snowflake.ID(100 + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Acquire(ctx, domain.AcquireRequest{
				OrgID: 1, UserID: userID, VariantID: 100, LockType: domain.LockEdit,
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			var conflict *domain.ConflictError
			if !errors.As(err, &conflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	locks, err := f.svc.ListByVariant(ctx, 1, 100)
	if err != nil {
		t.Fatalf("list by variant: %v", err)
	}
	if len(locks) != 1 {
		t.Fatalf("locks created = %d, want 1", len(locks))
	}
}

func TestAcquireValidation(t *testing.T) {
	f := newLockFixture(t)
	ctx := context.Background()

	cases := []struct {
		req  domain.AcquireRequest
		want error
	}{
		{domain.AcquireRequest{UserID: 10, VariantID: 100, LockType: domain.LockEdit}, domain.ErrInvalidOrganization},
		{domain.AcquireRequest{OrgID: 1, VariantID: 100, LockType: domain.LockEdit}, domain.ErrInvalidUser},
		{domain.AcquireRequest{OrgID: 1, UserID: 10, LockType: domain.LockEdit}, domain.ErrInvalidVariant},
		{domain.AcquireRequest{OrgID: 1, UserID: 10, VariantID: 100, LockType: "freeze"}, domain.ErrInvalidLockType},
		{domain.AcquireRequest{OrgID: 1, UserID: 10, VariantID: 100, LockType: domain.LockEdit, DurationMinutes: -5}, domain.ErrInvalidDuration},
	}
	for _, tc := range cases {
		if _, err := f.svc.Acquire(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("req %+v: got %v, want %v", tc.req, err, tc.want)
		}
	}
}
