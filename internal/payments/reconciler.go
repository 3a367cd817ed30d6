package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/danigamesx/barber-ai-sub000/internal/apperr"
	"github.com/danigamesx/barber-ai-sub000/internal/appointments"
	"github.com/danigamesx/barber-ai-sub000/internal/billing"
	"github.com/danigamesx/barber-ai-sub000/internal/entitlements"
	"github.com/danigamesx/barber-ai-sub000/internal/observability/metrics"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

var reconcilerTracer = otel.Tracer("barber.internal.payments.reconciler")

// BookingService is the appointment surface the reconciler drives.
type BookingService interface {
	Create(ctx context.Context, p appointments.CreateParams) (*appointments.Appointment, error)
	MarkPaid(ctx context.Context, tenantID, id uuid.UUID, sessionID string) (*appointments.Appointment, error)
	GetByPaymentSession(ctx context.Context, sessionID string) (*appointments.Appointment, error)
}

// EntitlementGrantor grants purchased packages and subscriptions.
type EntitlementGrantor interface {
	GrantPackage(ctx context.Context, p *entitlements.PackageCredit) error
	GrantSubscription(ctx context.Context, s *entitlements.Subscription) error
}

// PlanActivator activates a tenant's platform plan.
type PlanActivator interface {
	ActivatePlan(ctx context.Context, tenantID uuid.UUID, plan, planType string, now time.Time) (billing.PlanState, error)
}

// Reconciler turns a completed provider payment into exactly one business
// side effect. Every apply step is idempotent, so replayed webhooks and
// concurrent poll-verification converge on the same end state.
type Reconciler struct {
	sessions     *SessionRepository
	bookings     BookingService
	entitlements EntitlementGrantor
	plans        PlanActivator
	now          func() time.Time
	metrics      *metrics.PaymentMetrics
	logger       *logging.Logger
}

func NewReconciler(sessions *SessionRepository, bookings BookingService, grantor EntitlementGrantor, plans PlanActivator, logger *logging.Logger) *Reconciler {
	if sessions == nil {
		panic("payments: session repository required")
	}
	if bookings == nil {
		panic("payments: booking service required")
	}
	if grantor == nil {
		panic("payments: entitlement grantor required")
	}
	if plans == nil {
		panic("payments: plan activator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		sessions:     sessions,
		bookings:     bookings,
		entitlements: grantor,
		plans:        plans,
		now:          time.Now,
		logger:       logger,
	}
}

// WithClock overrides the time source, for tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	if now != nil {
		r.now = now
	}
	return r
}

// WithMetrics attaches payment metrics. Nil is fine.
func (r *Reconciler) WithMetrics(m *metrics.PaymentMetrics) *Reconciler {
	r.metrics = m
	return r
}

// ApplyPayment resolves the session a provider payment settles and applies
// its side effect. Safe to call multiple times for the same payment.
func (r *Reconciler) ApplyPayment(ctx context.Context, provider string, payment *ProviderPayment) error {
	ctx, span := reconcilerTracer.Start(ctx, "payments.reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("barber.provider", provider),
		attribute.String("barber.payment_id", payment.ID),
	)

	session, err := r.resolveSession(ctx, payment)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("barber.purchase_type", string(session.PurchaseType)))

	switch payment.State {
	case PaymentFailed:
		if err := r.sessions.MarkFailed(ctx, session.ID); err != nil {
			return err
		}
		r.logger.Info("payment failed", "session_id", session.ID, "provider", provider)
		return nil
	case PaymentCompleted:
	default:
		// Still pending at the provider, nothing to apply yet.
		return nil
	}

	if session.Status == SessionSucceeded {
		return nil
	}
	if payment.AmountCents != session.AmountCents {
		r.logger.Warn("payment amount differs from session",
			"session_id", session.ID,
			"session_cents", session.AmountCents,
			"payment_cents", payment.AmountCents)
	}

	if err := r.apply(ctx, session); err != nil {
		return err
	}

	applied, err := r.sessions.MarkSucceeded(ctx, session.ID)
	if err != nil {
		return err
	}
	if applied {
		r.metrics.ObserveReconciled(provider, string(session.PurchaseType))
		r.logger.Info("payment reconciled",
			"session_id", session.ID,
			"provider", provider,
			"purchase_type", session.PurchaseType,
			"amount_cents", session.AmountCents)
	}
	return nil
}

func (r *Reconciler) resolveSession(ctx context.Context, payment *ProviderPayment) (*SessionRecord, error) {
	if payment.SessionID != "" {
		if id, err := uuid.Parse(payment.SessionID); err == nil {
			return r.sessions.GetByID(ctx, id)
		}
	}
	// Stripe payments carry the provider session id directly.
	return r.sessions.GetByProviderSessionID(ctx, payment.ID)
}

func (r *Reconciler) apply(ctx context.Context, session *SessionRecord) error {
	switch session.PurchaseType {
	case PurchaseAppointment:
		return r.applyAppointment(ctx, session)
	case PurchasePackage:
		return r.applyPackage(ctx, session)
	case PurchaseSubscription:
		return r.applySubscription(ctx, session)
	case PurchaseTenantPlan:
		return r.applyPlan(ctx, session)
	}
	return fmt.Errorf("payments: unknown purchase type %q", session.PurchaseType)
}

func (r *Reconciler) applyAppointment(ctx context.Context, session *SessionRecord) error {
	var purchase AppointmentPurchase
	if err := json.Unmarshal(session.Payload, &purchase); err != nil {
		return fmt.Errorf("payments: decode appointment payload: %w", err)
	}

	if purchase.AppointmentID != nil {
		_, err := r.bookings.MarkPaid(ctx, session.TenantID, *purchase.AppointmentID, session.ID.String())
		return err
	}

	// A replayed delivery may have created the appointment already.
	if _, err := r.bookings.GetByPaymentSession(ctx, session.ID.String()); err == nil {
		return nil
	} else if !apperr.IsKind(err, apperr.KindNotFound) {
		return err
	}

	_, err := r.bookings.Create(ctx, appointments.CreateParams{
		TenantID:         session.TenantID,
		ClientID:         purchase.ClientID,
		BarberID:         purchase.BarberID,
		ServiceID:        purchase.ServiceID,
		StartAt:          purchase.StartAt,
		Notes:            purchase.Notes,
		Prepaid:          true,
		PaymentSessionID: session.ID.String(),
		Quote: &appointments.PriceQuote{
			BasePriceCents:  purchase.BasePriceCents,
			DebtFoldedCents: purchase.DebtFoldedCents,
			CreditUsedCents: purchase.CreditUsedCents,
			FinalPriceCents: purchase.FinalPriceCents,
		},
	})
	return err
}

func (r *Reconciler) applyPackage(ctx context.Context, session *SessionRecord) error {
	var purchase PackagePurchase
	if err := json.Unmarshal(session.Payload, &purchase); err != nil {
		return fmt.Errorf("payments: decode package payload: %w", err)
	}
	// The id was fixed at session creation, so the grant is an upsert no-op
	// on replay.
	return r.entitlements.GrantPackage(ctx, &entitlements.PackageCredit{
		ID:            purchase.PackageCreditID,
		TenantID:      session.TenantID,
		ClientID:      purchase.ClientID,
		Name:          purchase.Name,
		ServiceIDs:    purchase.ServiceIDs,
		TotalUses:     purchase.TotalUses,
		RemainingUses: purchase.TotalUses,
		PurchasedAt:   r.now(),
	})
}

func (r *Reconciler) applySubscription(ctx context.Context, session *SessionRecord) error {
	var purchase SubscriptionPurchase
	if err := json.Unmarshal(session.Payload, &purchase); err != nil {
		return fmt.Errorf("payments: decode subscription payload: %w", err)
	}
	return r.entitlements.GrantSubscription(ctx, &entitlements.Subscription{
		ID:          purchase.SubscriptionID,
		TenantID:    session.TenantID,
		ClientID:    purchase.ClientID,
		Name:        purchase.Name,
		ServiceIDs:  purchase.ServiceIDs,
		MonthlyUses: purchase.MonthlyUses,
		ActiveSince: r.now(),
	})
}

func (r *Reconciler) applyPlan(ctx context.Context, session *SessionRecord) error {
	var purchase PlanPurchase
	if err := json.Unmarshal(session.Payload, &purchase); err != nil {
		return fmt.Errorf("payments: decode plan payload: %w", err)
	}
	// Plan activation is a single-row upsert keyed by tenant, so a replay
	// only refreshes the same state.
	_, err := r.plans.ActivatePlan(ctx, session.TenantID, purchase.Plan, purchase.PlanType, r.now())
	return err
}
