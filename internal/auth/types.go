package auth

import "github.com/pkg/errors"

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Role is a caller's privilege tier.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Caller is the identity an operation runs on behalf of. It is passed
// explicitly into every store and service call.
type Caller struct {
	ID string
}

// Anonymous is the zero Caller.
var Anonymous = Caller{}

// Authenticated reports whether the caller carries an identity.
func (c Caller) Authenticated() bool { return c.ID != "" }

// Require returns ErrUnauthenticated for an anonymous caller.
func (c Caller) Require() error {
	if !c.Authenticated() {
		return ErrUnauthenticated
	}
	return nil
}

// Session is what the UI receives to decide which pages to render.
type Session struct {
	UserID  string `json:"user_id"`
	Role    Role   `json:"role"`
	IsAdmin bool   `json:"is_admin"`
}
