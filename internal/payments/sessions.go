package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/danigamesx/barber-ai-sub000/internal/apperr"
)

// PurchaseType classifies what a checkout session pays for. Exactly one side
// effect corresponds to each type.
type PurchaseType string

const (
	PurchaseAppointment  PurchaseType = "appointment"
	PurchasePackage      PurchaseType = "package"
	PurchaseSubscription PurchaseType = "subscription"
	PurchaseTenantPlan   PurchaseType = "tenant_plan_subscription"
)

// Session statuses.
const (
	SessionPending   = "pending"
	SessionSucceeded = "succeeded"
	SessionFailed    = "failed"
)

// SessionRecord is a checkout session we created, persisted before the
// client is redirected to the provider. Payload carries the purchase detail
// needed to apply the side effect once payment completes.
type SessionRecord struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	Provider          string
	ProviderSessionID string
	PurchaseType      PurchaseType
	AmountCents       int64
	Currency          string
	Status            string
	Payload           []byte
	CheckoutURL       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AppointmentPurchase is the payload for prepaid bookings. The quote captured
// here is what the client was actually charged, so the reconciler settles
// exactly these amounts.
type AppointmentPurchase struct {
	ClientID  uuid.UUID `json:"client_id"`
	BarberID  uuid.UUID `json:"barber_id"`
	ServiceID uuid.UUID `json:"service_id"`
	StartAt   time.Time `json:"start_at"`
	Notes     string    `json:"notes,omitempty"`
	// AppointmentID, when set, marks an existing appointment being paid
	// after the fact instead of a new prepaid booking.
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`

	BasePriceCents  int64 `json:"base_price_cents"`
	DebtFoldedCents int64 `json:"debt_folded_cents"`
	CreditUsedCents int64 `json:"credit_used_cents"`
	FinalPriceCents int64 `json:"final_price_cents"`
}

// PackagePurchase grants a package credit on completion. The id is generated
// at session creation so replayed webhooks grant at most once.
type PackagePurchase struct {
	PackageCreditID uuid.UUID   `json:"package_credit_id"`
	ClientID        uuid.UUID   `json:"client_id"`
	Name            string      `json:"name"`
	ServiceIDs      []uuid.UUID `json:"service_ids,omitempty"`
	TotalUses       int         `json:"total_uses"`
}

// SubscriptionPurchase grants a client subscription on completion.
type SubscriptionPurchase struct {
	SubscriptionID uuid.UUID   `json:"subscription_id"`
	ClientID       uuid.UUID   `json:"client_id"`
	Name           string      `json:"name"`
	ServiceIDs     []uuid.UUID `json:"service_ids,omitempty"`
	MonthlyUses    int         `json:"monthly_uses"`
}

// PlanPurchase activates the tenant's platform plan on completion.
type PlanPurchase struct {
	Plan     string `json:"plan"`
	PlanType string `json:"plan_type"`
}

// SessionRepository persists checkout sessions in Postgres.
type SessionRepository struct {
	pool DB
}

// DB is the pgx surface the payments repositories use.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func NewSessionRepository(pool DB) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, tenant_id, provider, provider_session_id, purchase_type,
	amount_cents, currency, status, payload, checkout_url, created_at, updated_at`

// Create inserts a pending session.
func (r *SessionRepository) Create(ctx context.Context, rec *SessionRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payment_sessions (
			id, tenant_id, provider, provider_session_id, purchase_type,
			amount_cents, currency, status, payload, checkout_url, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())`,
		rec.ID, rec.TenantID, rec.Provider, rec.ProviderSessionID, rec.PurchaseType,
		rec.AmountCents, rec.Currency, rec.Status, rec.Payload, rec.CheckoutURL,
	)
	if err != nil {
		return fmt.Errorf("payments: insert session: %w", err)
	}
	return nil
}

// GetByID fetches a session by our id.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*SessionRecord, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM payment_sessions WHERE id = $1`, id))
}

// GetByProviderSessionID fetches a session by the provider's id for it.
func (r *SessionRepository) GetByProviderSessionID(ctx context.Context, providerSessionID string) (*SessionRecord, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM payment_sessions WHERE provider_session_id = $1`, providerSessionID))
}

// MarkSucceeded moves a pending session to succeeded. Returns false when the
// session was not pending, which is how replays are detected.
func (r *SessionRepository) MarkSucceeded(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_sessions
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		SessionSucceeded, id, SessionPending,
	)
	if err != nil {
		return false, fmt.Errorf("payments: mark session succeeded: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed moves a pending session to failed.
func (r *SessionRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payment_sessions
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		SessionFailed, id, SessionPending,
	)
	if err != nil {
		return fmt.Errorf("payments: mark session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) scanOne(row pgx.Row) (*SessionRecord, error) {
	var rec SessionRecord
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.Provider, &rec.ProviderSessionID, &rec.PurchaseType,
		&rec.AmountCents, &rec.Currency, &rec.Status, &rec.Payload, &rec.CheckoutURL, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("payment session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("payments: scan session: %w", err)
	}
	return &rec, nil
}

func marshalPayload(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("payments: encode payload: %w", err)
	}
	return data, nil
}
