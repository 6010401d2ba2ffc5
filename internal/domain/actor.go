package domain

import "fmt"

// Role identifies the kind of principal initiating an order operation.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSupplier Role = "supplier"
	RoleAdmin    Role = "admin"

	// RoleSystem is used for machine-initiated transitions such as the
	// delivery confirmation recorded after a pickup is completed.
	RoleSystem Role = "system"
)

// Actor is the principal performing an operation on an order.
// The state machine owns the authorization table; callers never make
// role decisions themselves, they only say who they are.
type Actor struct {
	Role Role

	// ID is the customer or supplier identifier. Empty for admin and system.
	ID string
}

// Customer returns an actor for the given customer ID.
func Customer(id string) Actor {
	return Actor{Role: RoleCustomer, ID: id}
}

// Supplier returns an actor for the given supplier ID.
func Supplier(id string) Actor {
	return Actor{Role: RoleSupplier, ID: id}
}

// Admin returns an administrative actor.
func Admin() Actor {
	return Actor{Role: RoleAdmin}
}

// System returns a machine actor.
func System() Actor {
	return Actor{Role: RoleSystem}
}

// String renders the actor for status history entries, e.g. "supplier:sup-42".
func (a Actor) String() string {
	if a.ID == "" {
		return string(a.Role)
	}
	return fmt.Sprintf("%s:%s", a.Role, a.ID)
}

// isStaff reports whether the actor holds platform-level privileges.
func (a Actor) isStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}
