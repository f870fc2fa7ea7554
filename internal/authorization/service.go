// Package authorization answers "may this actor perform this capability in
// this org" via casbin RBAC. It is role-based coarse access control; plan
// limits and locks are separate axes handled by the governance facade.
package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize checks the actor ("user:<id>" or "system") against the
	// org-scoped policy. Returns ErrForbidden on denial.
	Authorize(ctx context.Context, actor, orgID, object, action string) error
}

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)

const (
	ObjectVariant      = "variant"
	ObjectLock         = "lock"
	ObjectPlan         = "plan"
	ObjectUsage        = "usage"
	ObjectOrganization = "organization"
	ObjectMember       = "member"
	ObjectBilling      = "billing"
)

const (
	ActionVariantView        = "variant.view"
	ActionVariantUpdate      = "variant.update"
	ActionVariantExport      = "variant.export"
	ActionVariantOptimize    = "variant.optimize"
	ActionVariantCoverLetter = "variant.cover_letter"

	ActionLockAcquire      = "lock.acquire"
	ActionLockRelease      = "lock.release"
	ActionLockForceRelease = "lock.force_release"
	ActionLockExtend       = "lock.extend"
	ActionLockView         = "lock.view"

	ActionPlanView   = "plan.view"
	ActionPlanUpdate = "plan.update"
	ActionPlanCheck  = "plan.check"

	ActionUsageView      = "usage.view"
	ActionUsageIncrement = "usage.increment"
	ActionUsageReset     = "usage.reset"

	ActionOrganizationView   = "organization.view"
	ActionOrganizationUpdate = "organization.update"

	ActionMemberView   = "member.view"
	ActionMemberAdd    = "member.add"
	ActionMemberRemove = "member.remove"

	ActionBillingView = "billing.view"
)

// Capability ties a metered operation to the object/action pair the actor
// must hold before the governance facade is even consulted.
type Capability struct {
	Object string
	Action string
}

var operationCapabilities = map[string]Capability{
	"export":       {ObjectVariant, ActionVariantExport},
	"optimization": {ObjectVariant, ActionVariantOptimize},
	"cover_letter": {ObjectVariant, ActionVariantCoverLetter},
	"api_call":     {ObjectUsage, ActionUsageIncrement},
	"storage":      {ObjectUsage, ActionUsageIncrement},
}

// CapabilityForOperation resolves the capability guarding an operation.
// Unknown operations fall back to plain variant update.
func CapabilityForOperation(operation string) Capability {
	if cap, ok := operationCapabilities[operation]; ok {
		return cap
	}
	return Capability{ObjectVariant, ActionVariantUpdate}
}
