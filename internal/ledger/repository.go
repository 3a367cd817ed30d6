// Package ledger tracks per-client, per-tenant store credit and outstanding
// debt balances. Balances are only ever incremented; booking reads them to
// offset the price due.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Balances holds a client's ledgers with one tenant, in cents.
type Balances struct {
	StoreCreditCents     int64
	OutstandingDebtCents int64
}

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists client ledgers.
type Repository struct {
	pool DB
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool DB) *Repository {
	if pool == nil {
		panic("ledger: pgx pool required")
	}
	return &Repository{pool: pool}
}

// BalancesFor returns the client's balances with the tenant, zero when no row
// exists yet.
func (r *Repository) BalancesFor(ctx context.Context, tenantID, clientID uuid.UUID) (Balances, error) {
	var b Balances
	err := r.pool.QueryRow(ctx, `
		SELECT store_credit_cents, outstanding_debt_cents
		FROM client_ledgers
		WHERE tenant_id = $1 AND client_id = $2
	`, tenantID, clientID).Scan(&b.StoreCreditCents, &b.OutstandingDebtCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balances{}, nil
	}
	if err != nil {
		return Balances{}, fmt.Errorf("ledger: load balances: %w", err)
	}
	return b, nil
}

// AddStoreCredit grants credit to the client. Amount must be positive.
func (r *Repository) AddStoreCredit(ctx context.Context, tenantID, clientID uuid.UUID, amountCents int64) error {
	return r.add(ctx, tenantID, clientID, amountCents, 0)
}

// AddOutstandingDebt records debt against the client. Amount must be positive.
func (r *Repository) AddOutstandingDebt(ctx context.Context, tenantID, clientID uuid.UUID, amountCents int64) error {
	return r.add(ctx, tenantID, clientID, 0, amountCents)
}

// Settle reduces balances consumed at booking time: the applied credit and the
// debt folded into the amount due.
func (r *Repository) Settle(ctx context.Context, tenantID, clientID uuid.UUID, creditUsedCents, debtClearedCents int64) error {
	if creditUsedCents == 0 && debtClearedCents == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE client_ledgers
		SET store_credit_cents = GREATEST(store_credit_cents - $3, 0),
			outstanding_debt_cents = GREATEST(outstanding_debt_cents - $4, 0),
			updated_at = now()
		WHERE tenant_id = $1 AND client_id = $2
	`, tenantID, clientID, creditUsedCents, debtClearedCents)
	if err != nil {
		return fmt.Errorf("ledger: settle balances: %w", err)
	}
	return nil
}

func (r *Repository) add(ctx context.Context, tenantID, clientID uuid.UUID, creditCents, debtCents int64) error {
	if creditCents < 0 || debtCents < 0 {
		return fmt.Errorf("ledger: negative adjustment")
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO client_ledgers (tenant_id, client_id, store_credit_cents, outstanding_debt_cents)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, client_id) DO UPDATE SET
			store_credit_cents = client_ledgers.store_credit_cents + EXCLUDED.store_credit_cents,
			outstanding_debt_cents = client_ledgers.outstanding_debt_cents + EXCLUDED.outstanding_debt_cents,
			updated_at = now()
	`, tenantID, clientID, creditCents, debtCents)
	if err != nil {
		return fmt.Errorf("ledger: add balances: %w", err)
	}
	return nil
}
