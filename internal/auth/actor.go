package auth

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
)

func (r Role) String() string {
	return string(r)
}

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleVendor, RoleDriver, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Actor identifies who performs an operation. For vendors and drivers ID is
// the vendor or driver id itself.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

func (a Actor) Is(role Role) bool {
	return a.Role == role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func Customer(id uuid.UUID) Actor { return Actor{ID: id, Role: RoleCustomer} }
func Vendor(id uuid.UUID) Actor   { return Actor{ID: id, Role: RoleVendor} }
func Driver(id uuid.UUID) Actor   { return Actor{ID: id, Role: RoleDriver} }
func Admin(id uuid.UUID) Actor    { return Actor{ID: id, Role: RoleAdmin} }

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
