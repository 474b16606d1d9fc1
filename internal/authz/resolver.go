// Package authz implements the role-resolution matrix gating every mutating
// operation in the system. The resolver is a pure function of (principal,
// action, resource): no repository access, no ambient request state, so the
// full role/action matrix can be tested exhaustively.
package authz

import (
	domain "github.com/craftfolio/api/internal/domain"
)

// Action identifies the operation being authorized.
type Action string

const (
	ActionRead          Action = "read"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionTransition    Action = "transition"
	ActionRecordPayment Action = "record_payment"
	ActionRefund        Action = "refund"
	ActionBulkUpdate    Action = "bulk_update"
)

// destructive actions are subject to the cross-cutting rule that a developer
// may not destroy resources owned by an admin principal.
var destructiveActions = map[Action]bool{
	ActionDelete: true,
	ActionRefund: true,
}

// staffOnlyActions may never be performed by a client, even on their own orders.
var staffOnlyActions = map[Action]bool{
	ActionRecordPayment: true,
	ActionRefund:        true,
	ActionBulkUpdate:    true,
	ActionTransition:    true,
	ActionDelete:        true,
}

// Resource describes the instance under authorization. OwnerID is the client
// the resource belongs to; OwnerRole is the role of the owning principal when
// the resource is itself an account-level object.
type Resource struct {
	Kind      string
	ID        string
	OwnerID   string
	OwnerRole domain.Role
}

// Decision is the outcome of an authorization check. HiddenFields lists field
// names that must be masked from the caller when the action is allowed.
type Decision struct {
	Allowed      bool
	Reason       string
	HiddenFields []string
}

// Allow constructs a permissive decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// AllowMasked constructs a permissive decision with a field-visibility mask.
func AllowMasked(hidden ...string) Decision {
	return Decision{Allowed: true, HiddenFields: hidden}
}

// Deny constructs a denial carrying an internal reason. The reason is for
// logs only and is never returned to the caller.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// clientHiddenFields are masked from client reads of their own orders.
var clientHiddenFields = []string{"notes", "audit"}

// Resolver evaluates the role matrix. The zero value is ready to use.
type Resolver struct{}

// NewResolver returns a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Authorize applies the role matrix to the requested action.
//
// Superuser principals are allowed unconditionally. Admins are allowed for
// every action in this subsystem. Developers are allowed for reads and writes
// on any client's resources but denied destructive actions against resources
// owned by an admin principal. Clients are allowed only on resources they
// own, and only for non-staff actions. Anonymous principals (nil) are always
// denied.
func (r *Resolver) Authorize(principal *domain.Principal, action Action, resource Resource) Decision {
	if principal == nil || principal.ID == "" {
		return Deny("anonymous principals have no access to this subsystem")
	}
	if !principal.IsActive {
		return Deny("principal is deactivated")
	}
	if principal.Superuser {
		return Allow()
	}

	switch principal.Role {
	case domain.RoleAdmin:
		return Allow()

	case domain.RoleDeveloper:
		if destructiveActions[action] && resource.OwnerRole == domain.RoleAdmin {
			return Deny("developers may not destroy admin-owned resources")
		}
		return Allow()

	case domain.RoleClient:
		if staffOnlyActions[action] {
			return Deny("action is reserved for staff")
		}
		if action == ActionCreate {
			// A client may create an order for themselves only.
			if resource.OwnerID != "" && resource.OwnerID != principal.ID {
				return Deny("clients may only create resources for themselves")
			}
			return Allow()
		}
		if resource.OwnerID != principal.ID {
			return Deny("resource is owned by another client")
		}
		if action == ActionRead {
			return AllowMasked(clientHiddenFields...)
		}
		return Allow()

	default:
		return Deny("unknown role")
	}
}
