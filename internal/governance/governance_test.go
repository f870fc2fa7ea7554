package governance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	plandomain "github.com/craftcv/craftcv/internal/planenforcement/domain"
	lockdomain "github.com/craftcv/craftcv/internal/softlock/domain"
)

type stubEnforcer struct {
	plandomain.Service

	err       error
	operation string
	amount    float64
}

func (s *stubEnforcer) Enforce(ctx context.Context, orgID snowflake.ID, operation string, amount float64) error {
	s.operation = operation
	s.amount = amount
	return s.err
}

type stubLocks struct {
	lockdomain.Service

	result *lockdomain.PermissionResult
	called bool
	action string
}

func (s *stubLocks) CheckPermission(ctx context.Context, req lockdomain.PermissionRequest) (*lockdomain.PermissionResult, error) {
	s.called = true
	s.action = req.Action
	return s.result, nil
}

func newGovernance(enforcer *stubEnforcer, locks *stubLocks) Service {
	return New(Params{
		Log:      zap.NewNop(),
		Enforcer: enforcer,
		Locks:    locks,
	})
}

func TestAuthorizeAllowed(t *testing.T) {
	enforcer := &stubEnforcer{}
	locks := &stubLocks{result: &lockdomain.PermissionResult{HasPermission: true}}
	svc := newGovernance(enforcer, locks)

	err := svc.Authorize(context.Background(), AuthorizeRequest{
		OrgID: 1, UserID: 10, VariantID: 100, Operation: "export",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if enforcer.amount != 1 {
		t.Fatalf("amount = %v, want default 1", enforcer.amount)
	}
	if !locks.called {
		t.Fatal("expected the lock check to run")
	}
	if locks.action != "export" {
		t.Fatalf("lock action = %q, want export", locks.action)
	}
}

func TestAuthorizePlanDenialBeforeLockCheck(t *testing.T) {
	enforcer := &stubEnforcer{err: &plandomain.ForbiddenError{
		Result: &plandomain.EnforcementResult{
			Allowed: false,
			Reason:  "export limit exceeded: 200 of 200 used, requested 1",
		},
	}}
	locks := &stubLocks{result: &lockdomain.PermissionResult{
		HasPermission: false,
		Reason:        "edit lock held by another user (read-only)",
	}}
	svc := newGovernance(enforcer, locks)

	err := svc.Authorize(context.Background(), AuthorizeRequest{
		OrgID: 1, UserID: 10, VariantID: 100, Operation: "export",
	})
	var forbidden *plandomain.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected the plan denial, got %v", err)
	}
	if locks.called {
		t.Fatal("lock check must not run after a plan denial")
	}
}

func TestAuthorizeLockDenial(t *testing.T) {
	heldBy := snowflake.ID(20)
	held := &lockdomain.SoftLock{
		ID: 5, OrgID: 1, UserID: heldBy, VariantID: 100,
		LockType:  lockdomain.LockEdit,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	enforcer := &stubEnforcer{}
	locks := &stubLocks{result: &lockdomain.PermissionResult{
		HasPermission: false,
		Lock:          held,
		Reason:        "edit lock held by another user (read-only)",
	}}
	svc := newGovernance(enforcer, locks)

	err := svc.Authorize(context.Background(), AuthorizeRequest{
		OrgID: 1, UserID: 10, VariantID: 100, Operation: "optimization",
	})
	var denied *LockDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected LockDeniedError, got %v", err)
	}
	if denied.Lock != held {
		t.Fatal("denial should carry the blocking lock")
	}
	if locks.action != "edit" {
		t.Fatalf("lock action = %q, want edit for a metered write", locks.action)
	}
}

func TestActionFor(t *testing.T) {
	cases := map[string]string{
		"export":       "export",
		"view":         "view",
		"read":         "read",
		"preview":      "preview",
		"optimization": "edit",
		"cover_letter": "edit",
		"api_call":     "edit",
	}
	for operation, want := range cases {
		if got := ActionFor(operation); got != want {
			t.Fatalf("ActionFor(%q) = %q, want %q", operation, got, want)
		}
	}
}

func TestAuthorizeAmountPassesThrough(t *testing.T) {
	enforcer := &stubEnforcer{}
	locks := &stubLocks{result: &lockdomain.PermissionResult{HasPermission: true}}
	svc := newGovernance(enforcer, locks)

	if err := svc.Authorize(context.Background(), AuthorizeRequest{
		OrgID: 1, UserID: 10, VariantID: 100, Operation: "storage", Amount: 2.5,
	}); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if enforcer.operation != "storage" || enforcer.amount != 2.5 {
		t.Fatalf("enforced %q/%v, want storage/2.5", enforcer.operation, enforcer.amount)
	}
}
