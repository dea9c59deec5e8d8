package postgres

import (
	"context"

	"github.com/Migueldasensi/migenius-95524223/internal/auth"
)

// HasRole reports whether the user holds the given role within the tenant.
func (r *Repository) HasRole(ctx context.Context, userID string, role auth.Role, tenantID string) (bool, error) {
	const query = `SELECT EXISTS (
        SELECT 1 FROM user_roles WHERE user_id=$1 AND role=$2 AND tenant_id=$3)`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return false, err
	}

	var found bool
	if err := tx.QueryRow(ctx, query, userID, string(role), tenantID).Scan(&found); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return found, nil
}

// RolesFor returns every role the user holds within the tenant.
func (r *Repository) RolesFor(ctx context.Context, userID, tenantID string) ([]auth.Role, error) {
	const query = `SELECT role FROM user_roles WHERE user_id=$1 AND tenant_id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, auth.Role(role))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return roles, nil
}
