package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/danigamesx/barber-ai-sub000/internal/apperr"
	"github.com/danigamesx/barber-ai-sub000/internal/catalog"
	"github.com/danigamesx/barber-ai-sub000/internal/entitlements"
	"github.com/danigamesx/barber-ai-sub000/internal/ledger"
	"github.com/danigamesx/barber-ai-sub000/internal/observability/metrics"
	"github.com/danigamesx/barber-ai-sub000/internal/tenants"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

var apptTracer = otel.Tracer("barber.internal.appointments")

// Store is the persistence surface the service depends on.
type Store interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error)
	GetByPaymentSession(ctx context.Context, sessionID string) (*Appointment, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, from []Status, next Status) (*Appointment, error)
	MarkPaid(ctx context.Context, tenantID, id uuid.UUID, sessionID string) (*Appointment, error)
	Reschedule(ctx context.Context, tenantID, id uuid.UUID, startAt, endAt time.Time) (*Appointment, error)
	CountSubscriptionUsage(ctx context.Context, tenantID, subscriptionID uuid.UUID, from, to time.Time) (int, error)
}

// SettingsSource resolves per-tenant settings.
type SettingsSource interface {
	Get(ctx context.Context, tenantID string) (*tenants.Settings, error)
}

// Catalog resolves services and barbers.
type Catalog interface {
	GetService(ctx context.Context, tenantID, serviceID uuid.UUID) (*catalog.Service, error)
	GetBarber(ctx context.Context, tenantID, barberID uuid.UUID) (*catalog.Barber, error)
}

// LedgerStore reads and mutates per-client credit and debt balances.
type LedgerStore interface {
	BalancesFor(ctx context.Context, tenantID, clientID uuid.UUID) (ledger.Balances, error)
	AddStoreCredit(ctx context.Context, tenantID, clientID uuid.UUID, amountCents int64) error
	AddOutstandingDebt(ctx context.Context, tenantID, clientID uuid.UUID, amountCents int64) error
	Settle(ctx context.Context, tenantID, clientID uuid.UUID, creditUsedCents, debtClearedCents int64) error
}

// EntitlementStore resolves and consumes packages and subscriptions.
type EntitlementStore interface {
	GetPackageCredit(ctx context.Context, tenantID, id uuid.UUID) (*entitlements.PackageCredit, error)
	GetSubscription(ctx context.Context, tenantID, id uuid.UUID) (*entitlements.Subscription, error)
	ConsumePackageUse(ctx context.Context, tenantID, id uuid.UUID) error
}

// AvailabilityChecker validates that a start time is a bookable slot.
type AvailabilityChecker interface {
	CanBook(ctx context.Context, tenantID, barberID uuid.UUID, start time.Time, duration time.Duration, loc *time.Location, exclude uuid.UUID) (bool, error)
}

// Service orchestrates the appointment lifecycle.
type Service struct {
	store        Store
	settings     SettingsSource
	catalog      Catalog
	ledger       LedgerStore
	entitlements EntitlementStore
	availability AvailabilityChecker
	now          func() time.Time
	metrics      *metrics.BookingMetrics
	logger       *logging.Logger
}

func NewService(store Store, settings SettingsSource, cat Catalog, led LedgerStore, ent EntitlementStore, avail AvailabilityChecker, logger *logging.Logger) *Service {
	if store == nil {
		panic("appointments: store required")
	}
	if settings == nil {
		panic("appointments: settings source required")
	}
	if cat == nil {
		panic("appointments: catalog required")
	}
	if led == nil {
		panic("appointments: ledger required")
	}
	if ent == nil {
		panic("appointments: entitlement store required")
	}
	if avail == nil {
		panic("appointments: availability checker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:        store,
		settings:     settings,
		catalog:      cat,
		ledger:       led,
		entitlements: ent,
		availability: avail,
		now:          time.Now,
		logger:       logger,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// WithMetrics attaches booking metrics. Nil is fine.
func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// CreateParams describes a booking request.
type CreateParams struct {
	TenantID  uuid.UUID
	ClientID  uuid.UUID
	BarberID  uuid.UUID
	ServiceID uuid.UUID
	StartAt   time.Time
	Notes     string

	// UseReward zeroes the base price for a loyalty reward redemption.
	UseReward bool
	// Entitlement, when set, covers the base price from a package or
	// subscription. At most one side may be set.
	Entitlement entitlements.Ref

	// Prepaid marks the appointment as already settled through a checkout
	// session. Set by the payment reconciler, never by client requests.
	Prepaid          bool
	PaymentSessionID string
	// Quote carries the price resolution captured when the checkout session
	// was created, so the prepaid path settles exactly what was charged.
	// When nil the service resolves the price at creation time.
	Quote *PriceQuote
}

// Create books an appointment. The start time must be a currently offered
// slot; pricing folds the client's outstanding debt in and spends store
// credit before anything is due. A prepaid conversion whose slot was taken
// while payment was in flight returns (nil, nil) after granting the charged
// amount back as store credit.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Appointment, error) {
	ctx, span := apptTracer.Start(ctx, "appointments.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("barber.tenant_id", p.TenantID.String()),
		attribute.String("barber.barber_id", p.BarberID.String()),
		attribute.String("barber.service_id", p.ServiceID.String()),
	)

	if err := p.validate(); err != nil {
		return nil, err
	}

	settings, err := s.settings.Get(ctx, p.TenantID.String())
	if err != nil {
		return nil, fmt.Errorf("appointments: load settings: %w", err)
	}
	loc := settings.Location()

	svc, err := s.catalog.GetService(ctx, p.TenantID, p.ServiceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetBarber(ctx, p.TenantID, p.BarberID); err != nil {
		return nil, err
	}

	start := p.StartAt.In(loc)
	// A prepaid conversion records money already taken. The start may be in
	// the past by the time the webhook lands, and the slot check is left to
	// the exclusion constraint on insert.
	if !p.Prepaid {
		if !start.After(s.now()) {
			return nil, apperr.Validation("start time must be in the future")
		}

		ok, err := s.availability.CanBook(ctx, p.TenantID, p.BarberID, start, svc.Duration(), loc, uuid.Nil)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.metrics.ObserveSlotConflict()
			return nil, apperr.Conflict("requested time is not an available slot")
		}
	}

	covered := p.UseReward
	if !p.Entitlement.IsZero() {
		if err := s.checkEntitlement(ctx, p, start); err != nil {
			return nil, err
		}
		covered = true
	}

	quote := p.Quote
	if quote == nil {
		bal, err := s.ledger.BalancesFor(ctx, p.TenantID, p.ClientID)
		if err != nil {
			return nil, err
		}
		q := ResolvePrice(svc.PriceCents, covered, bal)
		quote = &q
	}

	status := StatusPending
	if settings.AutoConfirmAppointments {
		status = StatusConfirmed
	}
	if p.Prepaid {
		status = StatusPaid
	}

	appt := &Appointment{
		ID:               uuid.New(),
		TenantID:         p.TenantID,
		ClientID:         p.ClientID,
		BarberID:         p.BarberID,
		ServiceID:        p.ServiceID,
		PriceCents:       quote.FinalPriceCents,
		StartAt:          start,
		EndAt:            start.Add(svc.Duration()),
		Status:           status,
		Notes:            p.Notes,
		IsReward:         p.UseReward,
		CreditUsedCents:  quote.CreditUsedCents,
		DebtFoldedCents:  quote.DebtFoldedCents,
		PackageCreditID:  p.Entitlement.PackageCreditID,
		SubscriptionID:   p.Entitlement.SubscriptionID,
		PaymentSessionID: p.PaymentSessionID,
	}
	if err := s.store.Create(ctx, appt); err != nil {
		if p.Prepaid && apperr.IsKind(err, apperr.KindConflict) {
			// The slot was taken while payment was in flight. The payment
			// cannot be dropped, so the charged amount becomes store credit.
			s.metrics.ObserveSlotConflict()
			if quote.FinalPriceCents > 0 {
				if credErr := s.ledger.AddStoreCredit(ctx, p.TenantID, p.ClientID, quote.FinalPriceCents); credErr != nil {
					return nil, fmt.Errorf("appointments: convert lost prepaid slot to credit: %w", credErr)
				}
			}
			s.logger.Warn("prepaid slot lost, payment converted to store credit",
				"tenant_id", p.TenantID,
				"client_id", p.ClientID,
				"payment_session_id", p.PaymentSessionID,
				"amount_cents", quote.FinalPriceCents)
			return nil, nil
		}
		return nil, err
	}

	// The guarded decrement runs after the insert so a lost slot race never
	// burns a package use. A use exhausted in between cancels the booking.
	if p.Entitlement.PackageCreditID != nil {
		if err := s.entitlements.ConsumePackageUse(ctx, p.TenantID, *p.Entitlement.PackageCreditID); err != nil {
			if _, revErr := s.store.UpdateStatus(ctx, p.TenantID, appt.ID, []Status{status}, StatusCancelled); revErr != nil {
				s.logger.Error("failed to revert booking after exhausted package",
					"appointment_id", appt.ID, "error", revErr)
			}
			return nil, err
		}
	}

	if quote.CreditUsedCents > 0 || quote.DebtFoldedCents > 0 {
		if err := s.ledger.Settle(ctx, p.TenantID, p.ClientID, quote.CreditUsedCents, quote.DebtFoldedCents); err != nil {
			s.logger.Error("failed to settle ledger for booking",
				"appointment_id", appt.ID, "error", err)
			return nil, err
		}
	}

	s.metrics.ObserveCreated(string(appt.Status), p.Entitlement.Kind())
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"tenant_id", p.TenantID,
		"status", appt.Status,
		"price_cents", appt.PriceCents)
	return appt, nil
}

func (p CreateParams) validate() error {
	if p.TenantID == uuid.Nil || p.ClientID == uuid.Nil || p.BarberID == uuid.Nil || p.ServiceID == uuid.Nil {
		return apperr.Validation("tenant, client, barber and service are required")
	}
	if p.StartAt.IsZero() {
		return apperr.Validation("start time is required")
	}
	if p.Entitlement.PackageCreditID != nil && p.Entitlement.SubscriptionID != nil {
		return apperr.Validation("a booking may reference at most one entitlement")
	}
	if p.UseReward && !p.Entitlement.IsZero() {
		return apperr.Validation("a reward booking cannot also consume an entitlement")
	}
	return nil
}

func (s *Service) checkEntitlement(ctx context.Context, p CreateParams, start time.Time) error {
	if p.Entitlement.PackageCreditID != nil {
		pkg, err := s.entitlements.GetPackageCredit(ctx, p.TenantID, *p.Entitlement.PackageCreditID)
		if err != nil {
			return err
		}
		if pkg.ClientID != p.ClientID {
			return apperr.Validation("package credit belongs to another client")
		}
		if !pkg.Covers(p.ServiceID) {
			return apperr.Validation("package credit does not cover this service")
		}
		if pkg.RemainingUses <= 0 {
			return apperr.StaleEntitlement("package credit %s has no remaining uses", pkg.ID)
		}
		return nil
	}

	sub, err := s.entitlements.GetSubscription(ctx, p.TenantID, *p.Entitlement.SubscriptionID)
	if err != nil {
		return err
	}
	if sub.ClientID != p.ClientID {
		return apperr.Validation("subscription belongs to another client")
	}
	if !sub.Covers(p.ServiceID) {
		return apperr.Validation("subscription does not cover this service")
	}
	from, to := entitlements.MonthWindow(start)
	used, err := s.store.CountSubscriptionUsage(ctx, p.TenantID, sub.ID, from, to)
	if err != nil {
		return err
	}
	if used >= sub.MonthlyUses {
		return apperr.StaleEntitlement("subscription %s has no uses left this month", sub.ID)
	}
	return nil
}

// Get fetches one appointment.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error) {
	return s.store.GetByID(ctx, tenantID, id)
}

// GetByPaymentSession fetches the appointment a checkout session settled.
func (s *Service) GetByPaymentSession(ctx context.Context, sessionID string) (*Appointment, error) {
	return s.store.GetByPaymentSession(ctx, sessionID)
}

// Accept confirms a pending appointment.
func (s *Service) Accept(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, tenantID, id, []Status{StatusPending}, StatusConfirmed)
}

// Decline rejects a pending appointment and puts the balances its quote
// consumed back.
func (s *Service) Decline(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, tenantID, id, []Status{StatusPending}, StatusDeclined)
	if err != nil {
		return nil, err
	}
	if err := s.restoreFoldedBalances(ctx, tenantID, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// restoreFoldedBalances reverses the ledger settlement a booking quote made.
// Only unpaid endings call this; a collected payment already covered the
// folded debt, and the spent credit went toward the charge.
func (s *Service) restoreFoldedBalances(ctx context.Context, tenantID uuid.UUID, appt *Appointment) error {
	if appt.CreditUsedCents > 0 {
		if err := s.ledger.AddStoreCredit(ctx, tenantID, appt.ClientID, appt.CreditUsedCents); err != nil {
			return fmt.Errorf("appointments: restore spent credit: %w", err)
		}
	}
	if appt.DebtFoldedCents > 0 {
		if err := s.ledger.AddOutstandingDebt(ctx, tenantID, appt.ClientID, appt.DebtFoldedCents); err != nil {
			return fmt.Errorf("appointments: restore folded debt: %w", err)
		}
	}
	return nil
}

// Complete marks a confirmed or paid appointment as delivered.
func (s *Service) Complete(ctx context.Context, tenantID, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, tenantID, id, []Status{StatusConfirmed, StatusPaid}, StatusCompleted)
}

func (s *Service) transition(ctx context.Context, tenantID, id uuid.UUID, from []Status, next Status) (*Appointment, error) {
	appt, err := s.store.UpdateStatus(ctx, tenantID, id, from, next)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(from[0]), string(next))
	return appt, nil
}

// MarkPaid records a successful payment against a confirmed appointment.
func (s *Service) MarkPaid(ctx context.Context, tenantID, id uuid.UUID, sessionID string) (*Appointment, error) {
	appt, err := s.store.MarkPaid(ctx, tenantID, id, sessionID)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(StatusConfirmed), string(StatusPaid))
	return appt, nil
}

// Cancel cancels a non-terminal appointment and applies the tenant's
// cancellation policy: a prepaid appointment converts to store credit, a
// late client cancellation of an unpaid one accrues the fee as debt.
func (s *Service) Cancel(ctx context.Context, tenantID, id uuid.UUID, actor string) (*Appointment, error) {
	ctx, span := apptTracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(
		attribute.String("barber.tenant_id", tenantID.String()),
		attribute.String("barber.actor", actor),
	)

	appt, err := s.store.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanTransitionTo(StatusCancelled) {
		return nil, apperr.Conflict("appointment is already %s", appt.Status)
	}

	settings, err := s.settings.Get(ctx, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("appointments: load settings: %w", err)
	}

	paid := appt.Status == StatusPaid
	outcome := EvaluateCancellation(settings.CancellationPolicy, actor, appt.PriceCents, paid, appt.StartAt.Sub(s.now()))

	cancelled, err := s.store.UpdateStatus(ctx, tenantID, id, []Status{StatusPending, StatusConfirmed, StatusPaid}, StatusCancelled)
	if err != nil {
		return nil, err
	}

	switch {
	case outcome.FeeCents > 0:
		if err := s.ledger.AddOutstandingDebt(ctx, tenantID, appt.ClientID, outcome.FeeCents); err != nil {
			return nil, fmt.Errorf("appointments: record cancellation fee: %w", err)
		}
		s.metrics.ObserveCancellationFee()
	case outcome.CreditCents > 0:
		if err := s.ledger.AddStoreCredit(ctx, tenantID, appt.ClientID, outcome.CreditCents); err != nil {
			return nil, fmt.Errorf("appointments: refund as credit: %w", err)
		}
	}

	// An unpaid booking consumed credit and cleared folded debt at creation
	// without money changing hands. Cancelling puts both balances back.
	if !paid {
		if err := s.restoreFoldedBalances(ctx, tenantID, appt); err != nil {
			return nil, err
		}
	}

	s.metrics.ObserveTransition(string(appt.Status), string(StatusCancelled))
	s.logger.Info("appointment cancelled",
		"appointment_id", id,
		"actor", actor,
		"fee_cents", outcome.FeeCents,
		"credit_cents", outcome.CreditCents)
	return cancelled, nil
}

// Reschedule moves a confirmed or paid appointment to a new slot. The new
// start must be an offered slot, ignoring the appointment's own hold.
func (s *Service) Reschedule(ctx context.Context, tenantID, id uuid.UUID, newStart time.Time) (*Appointment, error) {
	ctx, span := apptTracer.Start(ctx, "appointments.reschedule")
	defer span.End()

	appt, err := s.store.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusConfirmed && appt.Status != StatusPaid {
		return nil, apperr.Conflict("only confirmed or paid appointments can be rescheduled")
	}
	if !appt.StartAt.After(s.now()) {
		return nil, apperr.Validation("past appointments cannot be rescheduled")
	}

	settings, err := s.settings.Get(ctx, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("appointments: load settings: %w", err)
	}
	loc := settings.Location()

	svc, err := s.catalog.GetService(ctx, tenantID, appt.ServiceID)
	if err != nil {
		return nil, err
	}

	start := newStart.In(loc)
	if !start.After(s.now()) {
		return nil, apperr.Validation("new start time must be in the future")
	}

	ok, err := s.availability.CanBook(ctx, tenantID, appt.BarberID, start, svc.Duration(), loc, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("requested time is not an available slot")
	}

	return s.store.Reschedule(ctx, tenantID, id, start, start.Add(svc.Duration()))
}
