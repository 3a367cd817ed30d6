package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/danigamesx/barber-ai-sub000/internal/apperr"
)

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists package credits and subscriptions.
type Repository struct {
	pool DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool DB) *Repository {
	if pool == nil {
		panic("entitlements: pgx pool required")
	}
	return &Repository{pool: pool}
}

// GetPackageCredit loads a package credit scoped to the tenant.
func (r *Repository) GetPackageCredit(ctx context.Context, tenantID, id uuid.UUID) (*PackageCredit, error) {
	var p PackageCredit
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, client_id, name, service_ids, total_uses, remaining_uses, purchased_at
		FROM package_credits
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&p.ID, &p.TenantID, &p.ClientID, &p.Name, &p.ServiceIDs, &p.TotalUses, &p.RemainingUses, &p.PurchasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("package credit %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("entitlements: load package credit: %w", err)
	}
	return &p, nil
}

// GetSubscription loads a subscription scoped to the tenant.
func (r *Repository) GetSubscription(ctx context.Context, tenantID, id uuid.UUID) (*Subscription, error) {
	var s Subscription
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, client_id, name, service_ids, monthly_uses, active_since
		FROM subscriptions
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&s.ID, &s.TenantID, &s.ClientID, &s.Name, &s.ServiceIDs, &s.MonthlyUses, &s.ActiveSince)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("subscription %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("entitlements: load subscription: %w", err)
	}
	return &s, nil
}

// ConsumePackageUse decrements a package's remaining uses. The guard in the
// UPDATE is what makes concurrent consumption safe: when no row matches, the
// package is exhausted (or gone) and the booking must be rejected.
func (r *Repository) ConsumePackageUse(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE package_credits
		SET remaining_uses = remaining_uses - 1
		WHERE id = $1 AND tenant_id = $2 AND remaining_uses > 0
	`, id, tenantID)
	if err != nil {
		return fmt.Errorf("entitlements: consume package use: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.StaleEntitlement("package credit %s has no remaining uses", id)
	}
	return nil
}

// GrantPackage appends a new package credit with its full balance.
func (r *Repository) GrantPackage(ctx context.Context, p *PackageCredit) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.PurchasedAt.IsZero() {
		p.PurchasedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO package_credits (id, tenant_id, client_id, name, service_ids, total_uses, remaining_uses, purchased_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.TenantID, p.ClientID, p.Name, p.ServiceIDs, p.TotalUses, p.RemainingUses, p.PurchasedAt)
	if err != nil {
		return fmt.Errorf("entitlements: grant package: %w", err)
	}
	return nil
}

// GrantSubscription appends a new subscription active from now.
func (r *Repository) GrantSubscription(ctx context.Context, s *Subscription) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.ActiveSince.IsZero() {
		s.ActiveSince = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, tenant_id, client_id, name, service_ids, monthly_uses, active_since)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, s.ID, s.TenantID, s.ClientID, s.Name, s.ServiceIDs, s.MonthlyUses, s.ActiveSince)
	if err != nil {
		return fmt.Errorf("entitlements: grant subscription: %w", err)
	}
	return nil
}
