package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/danigamesx/barber-ai-sub000/internal/apperr"
	"github.com/danigamesx/barber-ai-sub000/internal/availability"
)

// DB is the subset of pgxpool.Pool the repository uses. Satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists appointments in Postgres.
type Repository struct {
	pool DB
}

func NewRepository(pool DB) *Repository {
	return &Repository{pool: pool}
}

const apptColumns = `id, tenant_id, client_id, barber_id, service_id, price_cents,
	start_at, end_at, status, notes, is_reward, credit_used_cents,
	debt_folded_cents, package_credit_id, subscription_id,
	COALESCE(payment_session_id, ''), created_at, updated_at`

// exclusionViolation is raised by the barber/time-range exclusion constraint
// when two active appointments would overlap.
const exclusionViolation = "23P01"

// Create inserts the appointment. A slot conflict with another active
// appointment surfaces as a conflict error rather than a raw database error.
func (r *Repository) Create(ctx context.Context, a *Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (
			id, tenant_id, client_id, barber_id, service_id, price_cents,
			start_at, end_at, status, notes, is_reward, credit_used_cents,
			debt_folded_cents, package_credit_id, subscription_id,
			payment_session_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULLIF($16, ''), now(), now())`,
		a.ID, a.TenantID, a.ClientID, a.BarberID, a.ServiceID, a.PriceCents,
		a.StartAt, a.EndAt, a.Status, a.Notes, a.IsReward, a.CreditUsedCents,
		a.DebtFoldedCents, a.PackageCreditID, a.SubscriptionID, a.PaymentSessionID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case exclusionViolation:
				return apperr.Conflict("slot is no longer available")
			case "23505":
				return apperr.Conflict("duplicate appointment")
			}
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// GetByID fetches one appointment scoped to a tenant.
func (r *Repository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	return scanAppointment(row)
}

// GetByPaymentSession fetches the appointment settled by a checkout session,
// if one was already recorded. Used by the webhook reconciler for dedupe.
func (r *Repository) GetByPaymentSession(ctx context.Context, sessionID string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE payment_session_id = $1`,
		sessionID,
	)
	return scanAppointment(row)
}

// UpdateStatus moves the appointment to next only if its current status is
// one of from. Returns the updated row, or a conflict error when the
// appointment exists but is not in an eligible state.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, from []Status, next Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3 AND status = ANY($4)
		RETURNING `+apptColumns,
		next, tenantID, id, statusStrings(from),
	)
	appt, err := scanAppointment(row)
	if err == nil {
		return appt, nil
	}
	if apperr.IsKind(err, apperr.KindNotFound) {
		// Distinguish a missing appointment from an illegal transition.
		if _, getErr := r.GetByID(ctx, tenantID, id); getErr == nil {
			return nil, apperr.Conflict("appointment cannot move to %s", next)
		}
		return nil, err
	}
	return nil, err
}

// MarkPaid flips a confirmed appointment to paid and records the checkout
// session that settled it.
func (r *Repository) MarkPaid(ctx context.Context, tenantID, id uuid.UUID, sessionID string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'paid', payment_session_id = NULLIF($1, ''), updated_at = now()
		WHERE tenant_id = $2 AND id = $3 AND status = 'confirmed'
		RETURNING `+apptColumns,
		sessionID, tenantID, id,
	)
	appt, err := scanAppointment(row)
	if err == nil {
		return appt, nil
	}
	if apperr.IsKind(err, apperr.KindNotFound) {
		if existing, getErr := r.GetByID(ctx, tenantID, id); getErr == nil {
			if existing.Status == StatusPaid {
				// Replayed webhook, nothing to do.
				return existing, nil
			}
			return nil, apperr.Conflict("appointment cannot be paid while %s", existing.Status)
		}
	}
	return nil, err
}

// Reschedule moves an appointment to a new slot, keeping its status. The
// exclusion constraint still guards the new range.
func (r *Repository) Reschedule(ctx context.Context, tenantID, id uuid.UUID, startAt, endAt time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET start_at = $1, end_at = $2, updated_at = now()
		WHERE tenant_id = $3 AND id = $4 AND status = ANY($5)
		RETURNING `+apptColumns,
		startAt, endAt, tenantID, id, statusStrings([]Status{StatusConfirmed, StatusPaid}),
	)
	appt, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
			return nil, apperr.Conflict("slot is no longer available")
		}
		return nil, err
	}
	return appt, nil
}

// ActiveIntervals returns the occupied time ranges for a barber between from
// and to. Only confirmed and paid appointments block the calendar; exclude
// drops one appointment from the result, used when rescheduling it.
func (r *Repository) ActiveIntervals(ctx context.Context, tenantID, barberID uuid.UUID, from, to time.Time, exclude uuid.UUID) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_at, end_at
		FROM appointments
		WHERE tenant_id = $1 AND barber_id = $2
		  AND status IN ('confirmed', 'paid')
		  AND start_at < $4 AND end_at > $3
		  AND id <> $5
		ORDER BY start_at`,
		tenantID, barberID, from, to, exclude,
	)
	if err != nil {
		return nil, fmt.Errorf("appointments: active intervals: %w", err)
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("appointments: scan interval: %w", err)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: active intervals: %w", err)
	}
	return out, nil
}

// CountSubscriptionUsage counts bookings charged against a subscription whose
// start falls inside [from, to). Declined and cancelled bookings do not count
// against the monthly allowance.
func (r *Repository) CountSubscriptionUsage(ctx context.Context, tenantID, subscriptionID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE tenant_id = $1 AND subscription_id = $2
		  AND start_at >= $3 AND start_at < $4
		  AND status NOT IN ('declined', 'cancelled')`,
		tenantID, subscriptionID, from, to,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("appointments: subscription usage: %w", err)
	}
	return n, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.TenantID, &a.ClientID, &a.BarberID, &a.ServiceID, &a.PriceCents,
		&a.StartAt, &a.EndAt, &a.Status, &a.Notes, &a.IsReward, &a.CreditUsedCents,
		&a.DebtFoldedCents, &a.PackageCreditID, &a.SubscriptionID,
		&a.PaymentSessionID, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: scan: %w", err)
	}
	return &a, nil
}

func statusStrings(in []Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
