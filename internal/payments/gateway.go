// Package payments integrates hosted checkout with Stripe and Square and
// reconciles asynchronous payment results back into bookings, entitlements,
// and tenant plans.
package payments

import (
	"context"

	"github.com/google/uuid"
)

// Provider names as stored on sessions and processed events.
const (
	ProviderStripe = "stripe"
	ProviderSquare = "square"
)

// Metadata keys attached to provider-side checkout objects. The session id is
// the only value the reconciler trusts from a webhook payload; everything
// else is re-read from our own session record and the provider API.
const (
	metaSessionID = "session_id"
	metaTenantID  = "tenant_id"
)

// SessionParams describes a checkout session to create.
type SessionParams struct {
	SessionID   uuid.UUID
	TenantID    uuid.UUID
	AmountCents int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
}

// Session is a hosted checkout link returned by a provider.
type Session struct {
	ProviderSessionID string
	URL               string
	Provider          string
}

// PaymentState is the provider-agnostic settlement state of a payment.
type PaymentState string

const (
	PaymentCompleted PaymentState = "completed"
	PaymentPending   PaymentState = "pending"
	PaymentFailed    PaymentState = "failed"
)

// ProviderPayment is a payment re-read from the provider API. Webhook
// payloads are treated as hints only; this is the authoritative record.
type ProviderPayment struct {
	ID          string
	State       PaymentState
	AmountCents int64
	Currency    string
	// SessionID is our payment session id recovered from provider metadata.
	SessionID string
}

// Gateway is one payment provider integration.
type Gateway interface {
	Name() string
	Configured() bool
	CreateSession(ctx context.Context, params SessionParams) (*Session, error)
	// FetchPayment re-reads a payment by provider id.
	FetchPayment(ctx context.Context, paymentID string) (*ProviderPayment, error)
	// FetchSessionPayment re-reads settlement state by provider session id.
	FetchSessionPayment(ctx context.Context, providerSessionID string) (*ProviderPayment, error)
}
