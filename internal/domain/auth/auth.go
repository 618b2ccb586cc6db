// Package auth defines the caller identity used at the authorization boundary.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// Role is the closed set of session roles.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleStaff   Role = "STAFF"
	RoleAdmin   Role = "ADMIN"
)

// ErrUnknownRole is returned by ParseRole for values outside the enum.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole converts a claim value into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleStudent, RoleStaff, RoleAdmin:
		return r, nil
	default:
		return "", errors.Wrapf(ErrUnknownRole, "%q", s)
	}
}

// CanManageOrders reports whether the role may drive the kitchen workflow.
func (r Role) CanManageOrders() bool {
	switch r {
	case RoleStaff, RoleAdmin:
		return true
	case RoleStudent:
		return false
	default:
		return false
	}
}

// CanPlaceOrders reports whether the role may create and cancel its own orders.
func (r Role) CanPlaceOrders() bool {
	switch r {
	case RoleStudent:
		return true
	case RoleStaff, RoleAdmin:
		return false
	default:
		return false
	}
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Role   Role
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
