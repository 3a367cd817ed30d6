package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists tenant plan state. The table holds at most one row per
// tenant; activation is a single-row upsert keyed on the tenant id, which is
// also what makes replayed plan-activation webhooks harmless.
type Repository struct {
	pool DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool DB) *Repository {
	if pool == nil {
		panic("billing: pgx pool required")
	}
	return &Repository{pool: pool}
}

// GetPlanState loads the tenant's plan state. A tenant without a row has the
// zero state (no trial, no plan, active status).
func (r *Repository) GetPlanState(ctx context.Context, tenantID uuid.UUID) (PlanState, error) {
	state := PlanState{TenantID: tenantID, PlanStatus: StatusActive}
	err := r.pool.QueryRow(ctx, `
		SELECT plan, plan_type, plan_status, trial_ends_at, plan_expires_at, updated_at
		FROM tenant_plans
		WHERE tenant_id = $1
	`, tenantID).Scan(&state.Plan, &state.PlanType, &state.PlanStatus, &state.TrialEndsAt, &state.PlanExpiresAt, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return PlanState{}, fmt.Errorf("billing: load plan state: %w", err)
	}
	return state, nil
}

// ActivatePlan upserts the tenant's paid plan: expiry moves to now plus one
// billing cycle, status becomes active, and any trial end date is cleared.
func (r *Repository) ActivatePlan(ctx context.Context, tenantID uuid.UUID, plan, planType string, now time.Time) (PlanState, error) {
	expiresAt := ExpiryFrom(now, planType)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenant_plans (tenant_id, plan, plan_type, plan_status, trial_ends_at, plan_expires_at, updated_at)
		VALUES ($1, $2, $3, $4, NULL, $5, now())
		ON CONFLICT (tenant_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			plan_type = EXCLUDED.plan_type,
			plan_status = EXCLUDED.plan_status,
			trial_ends_at = NULL,
			plan_expires_at = EXCLUDED.plan_expires_at,
			updated_at = now()
	`, tenantID, plan, planType, StatusActive, expiresAt)
	if err != nil {
		return PlanState{}, fmt.Errorf("billing: activate plan: %w", err)
	}
	return r.GetPlanState(ctx, tenantID)
}

// StartTrial records a trial window for a tenant without a paid plan.
func (r *Repository) StartTrial(ctx context.Context, tenantID uuid.UUID, until time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenant_plans (tenant_id, plan, plan_type, plan_status, trial_ends_at, updated_at)
		VALUES ($1, '', '', $2, $3, now())
		ON CONFLICT (tenant_id) DO UPDATE SET
			trial_ends_at = EXCLUDED.trial_ends_at,
			updated_at = now()
	`, tenantID, StatusActive, until)
	if err != nil {
		return fmt.Errorf("billing: start trial: %w", err)
	}
	return nil
}

// Suspend marks the tenant inactive regardless of stored dates.
func (r *Repository) Suspend(ctx context.Context, tenantID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenant_plans SET plan_status = $2, updated_at = now() WHERE tenant_id = $1
	`, tenantID, StatusSuspended)
	if err != nil {
		return fmt.Errorf("billing: suspend: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("billing: suspend: tenant %s has no plan row", tenantID)
	}
	return nil
}
