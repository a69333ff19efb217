package order

import (
	"github.com/vasiliy-maslov/fuel-delivery/internal/auth"
)

type transition struct {
	from Status
	to   Status
	role auth.Role
}

// allowedTransitions is the full lifecycle table. Anything missing is
// rejected, whatever the client UI offered.
var allowedTransitions = map[transition]bool{
	{StatusPending, StatusConfirmed, auth.RoleVendor}:        true,
	{StatusConfirmed, StatusPreparing, auth.RoleVendor}:      true,
	{StatusPreparing, StatusOutForDelivery, auth.RoleVendor}: true,
	{StatusOutForDelivery, StatusDelivered, auth.RoleVendor}: true,
	{StatusOutForDelivery, StatusDelivered, auth.RoleDriver}: true,
	{StatusPending, StatusCancelled, auth.RoleCustomer}:      true,
	{StatusConfirmed, StatusCancelled, auth.RoleCustomer}:    true,
	{StatusPending, StatusConfirmed, auth.RoleAdmin}:         true,
	{StatusConfirmed, StatusPreparing, auth.RoleAdmin}:       true,
	{StatusPreparing, StatusOutForDelivery, auth.RoleAdmin}:  true,
	{StatusOutForDelivery, StatusDelivered, auth.RoleAdmin}:  true,
	{StatusPending, StatusCancelled, auth.RoleAdmin}:         true,
	{StatusConfirmed, StatusCancelled, auth.RoleAdmin}:       true,
	{StatusPreparing, StatusCancelled, auth.RoleAdmin}:       true,
	{StatusOutForDelivery, StatusCancelled, auth.RoleAdmin}:  true,
}

func CanTransition(from, to Status, role auth.Role) bool {
	return allowedTransitions[transition{from, to, role}]
}

// canAccess reports whether actor is a party to o.
func canAccess(actor auth.Actor, o *Order) bool {
	switch actor.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleCustomer:
		return o.CustomerID == actor.ID
	case auth.RoleVendor:
		return o.VendorID == actor.ID
	case auth.RoleDriver:
		return o.HasDriver(actor.ID)
	}
	return false
}

func checkTransition(actor auth.Actor, o *Order, to Status) error {
	if !canAccess(actor, o) {
		return ErrForbidden
	}
	if o.Status == to {
		return &TransitionError{From: o.Status, To: to, Role: actor.Role.String(), Reason: "order is already in this status"}
	}
	if o.Status.IsTerminal() {
		return &TransitionError{From: o.Status, To: to, Role: actor.Role.String(), Reason: "order is closed"}
	}
	if !CanTransition(o.Status, to, actor.Role) {
		return &TransitionError{From: o.Status, To: to, Role: actor.Role.String()}
	}
	return nil
}
