package auth

import (
	"context"

	"github.com/pkg/errors"
)

// RoleRepository resolves the role assigned to a user. Unknown users have
// RoleCustomer.
type RoleRepository interface {
	RoleOf(ctx context.Context, userID string) (Role, error)
}

// Gate resolves sessions for rendering and authorizes admin-only operations.
// Both read the same role assignment.
type Gate struct {
	roles RoleRepository
}

// NewGate creates a Gate reading role assignments from roles.
func NewGate(roles RoleRepository) *Gate {
	return &Gate{roles: roles}
}

// Resolve returns the caller's session. The result is a hint for the client
// only; operations authorize themselves through RequireAdmin or store policies.
func (g *Gate) Resolve(ctx context.Context, caller Caller) (Session, error) {
	if err := caller.Require(); err != nil {
		return Session{}, err
	}
	role, err := g.roles.RoleOf(ctx, caller.ID)
	if err != nil {
		return Session{}, errors.Wrap(err, "resolve role")
	}
	return Session{UserID: caller.ID, Role: role, IsAdmin: role == RoleAdmin}, nil
}

// RequireAdmin fails with ErrUnauthenticated or ErrForbidden unless the caller
// holds RoleAdmin.
func (g *Gate) RequireAdmin(ctx context.Context, caller Caller) error {
	s, err := g.Resolve(ctx, caller)
	if err != nil {
		return err
	}
	if !s.IsAdmin {
		return ErrForbidden
	}
	return nil
}
