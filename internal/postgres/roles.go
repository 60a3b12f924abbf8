package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/imrishuroy/go-storefront/internal/auth"
)

// RoleRepo implements auth.RoleRepository. A user can only read their own
// assignment.
type RoleRepo struct {
	db *DB
}

// NewRoleRepo creates a RoleRepo on db.
func NewRoleRepo(db *DB) *RoleRepo {
	return &RoleRepo{db: db}
}

var _ auth.RoleRepository = (*RoleRepo)(nil)

func (r *RoleRepo) RoleOf(ctx context.Context, userID string) (auth.Role, error) {
	role := auth.RoleCustomer
	err := r.db.asCaller(ctx, auth.Caller{ID: userID}, func(tx *sqlx.Tx) error {
		var stored string
		err := tx.GetContext(ctx, &stored, `SELECT role FROM user_roles WHERE user_id = $1`, userID)
		if isNoRows(err) {
			return nil
		}
		if err != nil {
			return classify("get role", err)
		}
		if auth.Role(stored) == auth.RoleAdmin {
			role = auth.RoleAdmin
		}
		return nil
	})
	return role, err
}
