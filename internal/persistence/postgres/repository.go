// Package postgres provides pgx-backed persistence for users, roles, and the
// append-only activity log, plus the transactional outbox rows published to
// Kafka. Tenant isolation is enforced with row-level security keyed off the
// app.tenant_id setting established per transaction.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Migueldasensi/migenius-95524223/internal/domain"
	"github.com/Migueldasensi/migenius-95524223/internal/events"
	"github.com/Migueldasensi/migenius-95524223/internal/observability"
)

// Repository implements the domain's ActivityStore, UserStore, and RoleStore
// over a single connection pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists the activity and its outbox events inside one transaction.
// The caller's balance update happens elsewhere; only the audit record and
// its events are atomic with each other.
func (r *Repository) Insert(ctx context.Context, activity domain.Activity) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", activity.TenantID); err != nil {
		return err
	}

	const insertActivity = `INSERT INTO activities (id, tenant_id, user_id, type, xp, reason, metadata, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, insertActivity,
		activity.ID,
		activity.TenantID,
		activity.UserID,
		activity.Type,
		activity.XP,
		nullIfEmpty(activity.Reason),
		nullIfEmptyJSON(activity.Metadata),
		activity.CreatedAt,
	)
	if err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, activity); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordActivityPersisted(activity.CreatedAt)
	return nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, activity domain.Activity) error {
	eventType, payload, err := eventFor(activity)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	partitionKey := fmt.Sprintf("%s:%s", activity.TenantID, activity.UserID)
	dedupeKey := fmt.Sprintf("%s:%s", activity.ID, eventType)

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		activity.TenantID,
		"activity",
		activity.ID,
		eventType,
		xpEventsTopic,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

const xpEventsTopic = "xp_events"

func eventFor(activity domain.Activity) (string, interface{}, error) {
	switch activity.Type {
	case domain.ActivityTypeAward:
		return "xp.awarded", events.XPAwarded{
			ActivityID: activity.ID,
			TenantID:   activity.TenantID,
			UserID:     activity.UserID,
			XP:         activity.XP,
			Reason:     activity.Reason,
			Metadata:   activity.Metadata,
			OccurredAt: activity.CreatedAt,
		}, nil
	case domain.ActivityTypeAdjustment:
		return "xp.adjusted", events.XPAdjusted{
			ActivityID: activity.ID,
			TenantID:   activity.TenantID,
			UserID:     activity.UserID,
			XP:         activity.XP,
			Reason:     activity.Reason,
			Metadata:   activity.Metadata,
			OccurredAt: activity.CreatedAt,
		}, nil
	default:
		return "", nil, fmt.Errorf("unknown activity type: %s", activity.Type)
	}
}

// ListByUser returns activities for a user ordered newest first with keyset
// pagination on (created_at, id).
func (r *Repository) ListByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{tenantID, userID, limit}
	query := `SELECT id, tenant_id, user_id, type, xp, COALESCE(reason, ''), metadata, created_at
        FROM activities WHERE tenant_id=$1 AND user_id=$2`

	if cursor != nil {
		query += ` AND (created_at, id) < ($4, $5)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT $3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		var act domain.Activity
		if err := rows.Scan(&act.ID, &act.TenantID, &act.UserID, &act.Type, &act.XP, &act.Reason, &act.Metadata, &act.CreatedAt); err != nil {
			return nil, nil, err
		}
		results = append(results, act)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

// ListSince returns all of a user's activities created at or after the given
// instant, oldest first.
func (r *Repository) ListSince(ctx context.Context, tenantID, userID string, since time.Time) ([]domain.Activity, error) {
	const query = `SELECT id, tenant_id, user_id, type, xp, COALESCE(reason, ''), metadata, created_at
        FROM activities WHERE tenant_id=$1 AND user_id=$2 AND created_at >= $3
        ORDER BY created_at ASC`

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

	rows, err := tx.Query(ctx, query, tenantID, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Activity
	for rows.Next() {
		var act domain.Activity
		if err := rows.Scan(&act.ID, &act.TenantID, &act.UserID, &act.Type, &act.XP, &act.Reason, &act.Metadata, &act.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, act)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// TimestampsByUser returns every activity timestamp for the user; streak
// computation only needs the instants.
func (r *Repository) TimestampsByUser(ctx context.Context, tenantID, userID string) ([]time.Time, error) {
	const query = `SELECT created_at FROM activities WHERE tenant_id=$1 AND user_id=$2 ORDER BY created_at DESC`

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

	rows, err := tx.Query(ctx, query, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullIfEmptyJSON(value json.RawMessage) interface{} {
	if len(value) == 0 {
		return nil
	}
	return value
}
