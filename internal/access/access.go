package access

import (
	"github.com/google/uuid"

	"github.com/bouncebros/bouncebros-backend/pkg/enums"
)

// Actor is the authenticated caller attached to a request.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// Action names a privileged operation the role table guards.
type Action string

const (
	ActionManageOrders     Action = "orders.manage"
	ActionDeleteOrder      Action = "orders.delete"
	ActionOverrideDelivery Action = "delivery.override"
	ActionRecordPayment    Action = "payments.record"
	ActionSendAgreement    Action = "agreements.send"
)

// Authorizer decides whether an actor may perform an action.
type Authorizer interface {
	Authorize(actor Actor, action Action) bool
}

// RoleAuthorizer grants actions from a static role table.
type RoleAuthorizer struct {
	grants map[Action][]enums.Role
}

// NewRoleAuthorizer builds the default role table. Delivery overrides and
// order deletion stay admin-only; day-to-day order work is open to staff.
func NewRoleAuthorizer() *RoleAuthorizer {
	return &RoleAuthorizer{
		grants: map[Action][]enums.Role{
			ActionManageOrders:     {enums.RoleAdmin, enums.RoleStaff},
			ActionDeleteOrder:      {enums.RoleAdmin},
			ActionOverrideDelivery: {enums.RoleAdmin},
			ActionRecordPayment:    {enums.RoleAdmin, enums.RoleStaff},
			ActionSendAgreement:    {enums.RoleAdmin, enums.RoleStaff},
		},
	}
}

// Authorize reports whether the actor's role is granted the action.
func (a *RoleAuthorizer) Authorize(actor Actor, action Action) bool {
	if a == nil || actor.UserID == uuid.Nil {
		return false
	}
	for _, role := range a.grants[action] {
		if role == actor.Role {
			return true
		}
	}
	return false
}
