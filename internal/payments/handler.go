package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/danigamesx/barber-ai-sub000/internal/apperr"
	"github.com/danigamesx/barber-ai-sub000/internal/appointments"
	"github.com/danigamesx/barber-ai-sub000/internal/catalog"
	"github.com/danigamesx/barber-ai-sub000/internal/ledger"
	"github.com/danigamesx/barber-ai-sub000/internal/observability/metrics"
	"github.com/danigamesx/barber-ai-sub000/internal/tenancy"
	"github.com/danigamesx/barber-ai-sub000/internal/tenants"
	"github.com/danigamesx/barber-ai-sub000/pkg/logging"
)

var validate = validator.New()

// SettingsSource resolves per-tenant settings.
type SettingsSource interface {
	Get(ctx context.Context, tenantID string) (*tenants.Settings, error)
}

// CatalogSource resolves services for pricing.
type CatalogSource interface {
	GetService(ctx context.Context, tenantID, serviceID uuid.UUID) (*catalog.Service, error)
}

// BalanceSource reads client ledgers for quote capture.
type BalanceSource interface {
	BalancesFor(ctx context.Context, tenantID, clientID uuid.UUID) (ledger.Balances, error)
}

// SlotChecker validates that a requested start is bookable before money is
// collected for it.
type SlotChecker interface {
	CanBook(ctx context.Context, tenantID, barberID uuid.UUID, start time.Time, duration time.Duration, loc *time.Location, exclude uuid.UUID) (bool, error)
}

// PlanPricing carries the platform plan price points.
type PlanPricing struct {
	MonthlyCents int64
	AnnualCents  int64
	Currency     string
}

// CheckoutHandler creates hosted checkout sessions and verifies their
// outcome on demand.
type CheckoutHandler struct {
	sessions   *SessionRepository
	stripe     Gateway
	square     Gateway
	settings   SettingsSource
	catalog    CatalogSource
	balances   BalanceSource
	slots      SlotChecker
	reconciler *Reconciler
	planPrices PlanPricing
	metrics    *metrics.PaymentMetrics
	logger     *logging.Logger
}

func NewCheckoutHandler(sessions *SessionRepository, stripe, square Gateway, settings SettingsSource, cat CatalogSource, balances BalanceSource, slots SlotChecker, reconciler *Reconciler, planPrices PlanPricing, logger *logging.Logger) *CheckoutHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CheckoutHandler{
		sessions:   sessions,
		stripe:     stripe,
		square:     square,
		settings:   settings,
		catalog:    cat,
		balances:   balances,
		slots:      slots,
		reconciler: reconciler,
		planPrices: planPrices,
		logger:     logger,
	}
}

// WithMetrics attaches payment metrics. Nil is fine.
func (h *CheckoutHandler) WithMetrics(m *metrics.PaymentMetrics) *CheckoutHandler {
	h.metrics = m
	return h
}

type checkoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	Provider    string `json:"provider"`
	AmountCents int64  `json:"amount_cents"`
}

type appointmentCheckoutRequest struct {
	ClientID  string    `json:"client_id" validate:"required,uuid"`
	BarberID  string    `json:"barber_id" validate:"required,uuid"`
	ServiceID string    `json:"service_id" validate:"required,uuid"`
	StartAt   time.Time `json:"start_at" validate:"required"`
	Notes     string    `json:"notes" validate:"max=2000"`
	// AppointmentID pays an existing confirmed appointment instead of
	// booking a new one.
	AppointmentID string `json:"appointment_id" validate:"omitempty,uuid"`
}

// CheckoutAppointment creates a checkout session for a prepaid booking. The
// price quote is resolved now and frozen into the session payload.
func (h *CheckoutHandler) CheckoutAppointment(w http.ResponseWriter, r *http.Request) {
	tenantID, settings, ok := h.tenantSettings(w, r)
	if !ok {
		return
	}

	var req appointmentCheckoutRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	clientID := uuid.MustParse(req.ClientID)
	barberID := uuid.MustParse(req.BarberID)
	serviceID := uuid.MustParse(req.ServiceID)
	loc := settings.Location()

	svc, err := h.catalog.GetService(r.Context(), tenantID, serviceID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	start := req.StartAt.In(loc)
	bookable, err := h.slots.CanBook(r.Context(), tenantID, barberID, start, svc.Duration(), loc, uuid.Nil)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !bookable {
		h.respondError(w, apperr.Conflict("requested time is not an available slot"))
		return
	}

	bal, err := h.balances.BalancesFor(r.Context(), tenantID, clientID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	quote := appointments.ResolvePrice(svc.PriceCents, false, bal)
	if quote.FinalPriceCents <= 0 {
		h.respondError(w, apperr.Validation("amount due is zero, book the appointment directly"))
		return
	}

	purchase := AppointmentPurchase{
		ClientID:        clientID,
		BarberID:        barberID,
		ServiceID:       serviceID,
		StartAt:         start,
		Notes:           req.Notes,
		BasePriceCents:  quote.BasePriceCents,
		DebtFoldedCents: quote.DebtFoldedCents,
		CreditUsedCents: quote.CreditUsedCents,
		FinalPriceCents: quote.FinalPriceCents,
	}
	if req.AppointmentID != "" {
		id := uuid.MustParse(req.AppointmentID)
		purchase.AppointmentID = &id
	}

	h.createSession(w, r, tenantID, settings, PurchaseAppointment, quote.FinalPriceCents,
		fmt.Sprintf("%s with deposit", svc.Name), purchase)
}

type packageCheckoutRequest struct {
	ClientID   string   `json:"client_id" validate:"required,uuid"`
	Name       string   `json:"name" validate:"required,max=200"`
	ServiceIDs []string `json:"service_ids" validate:"dive,uuid"`
	TotalUses  int      `json:"total_uses" validate:"required,gt=0"`
	PriceCents int64    `json:"price_cents" validate:"required,gt=0"`
}

// CheckoutPackage creates a checkout session for a package of uses.
func (h *CheckoutHandler) CheckoutPackage(w http.ResponseWriter, r *http.Request) {
	tenantID, settings, ok := h.tenantSettings(w, r)
	if !ok {
		return
	}
	var req packageCheckoutRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	purchase := PackagePurchase{
		PackageCreditID: uuid.New(),
		ClientID:        uuid.MustParse(req.ClientID),
		Name:            req.Name,
		ServiceIDs:      parseUUIDs(req.ServiceIDs),
		TotalUses:       req.TotalUses,
	}
	h.createSession(w, r, tenantID, settings, PurchasePackage, req.PriceCents, req.Name, purchase)
}

type subscriptionCheckoutRequest struct {
	ClientID    string   `json:"client_id" validate:"required,uuid"`
	Name        string   `json:"name" validate:"required,max=200"`
	ServiceIDs  []string `json:"service_ids" validate:"dive,uuid"`
	MonthlyUses int      `json:"monthly_uses" validate:"required,gt=0"`
	PriceCents  int64    `json:"price_cents" validate:"required,gt=0"`
}

// CheckoutSubscription creates a checkout session for a client subscription.
func (h *CheckoutHandler) CheckoutSubscription(w http.ResponseWriter, r *http.Request) {
	tenantID, settings, ok := h.tenantSettings(w, r)
	if !ok {
		return
	}
	var req subscriptionCheckoutRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	purchase := SubscriptionPurchase{
		SubscriptionID: uuid.New(),
		ClientID:       uuid.MustParse(req.ClientID),
		Name:           req.Name,
		ServiceIDs:     parseUUIDs(req.ServiceIDs),
		MonthlyUses:    req.MonthlyUses,
	}
	h.createSession(w, r, tenantID, settings, PurchaseSubscription, req.PriceCents, req.Name, purchase)
}

type subscribePlanRequest struct {
	PlanType string `json:"plan_type" validate:"required,oneof=monthly annual"`
}

// SubscribePlan creates a checkout session for the tenant's platform plan.
// Plan billing always goes through the platform's Stripe account.
func (h *CheckoutHandler) SubscribePlan(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	var req subscribePlanRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	amount := h.planPrices.MonthlyCents
	if req.PlanType == "annual" {
		amount = h.planPrices.AnnualCents
	}
	if h.stripe == nil || !h.stripe.Configured() {
		h.respondError(w, apperr.NotConfigured("platform billing is not configured"))
		return
	}

	sessionID := uuid.New()
	session, err := h.stripe.CreateSession(r.Context(), SessionParams{
		SessionID:   sessionID,
		TenantID:    tenantID,
		AmountCents: amount,
		Currency:    h.planPrices.Currency,
		Description: fmt.Sprintf("Platform plan (%s)", req.PlanType),
	})
	if err != nil {
		h.logger.Error("plan checkout failed", "error", err, "tenant_id", tenantID)
		h.respondError(w, err)
		return
	}

	payload, err := marshalPayload(PlanPurchase{Plan: "pro", PlanType: req.PlanType})
	if err != nil {
		h.respondError(w, err)
		return
	}
	rec := &SessionRecord{
		ID:                sessionID,
		TenantID:          tenantID,
		Provider:          session.Provider,
		ProviderSessionID: session.ProviderSessionID,
		PurchaseType:      PurchaseTenantPlan,
		AmountCents:       amount,
		Currency:          h.planPrices.Currency,
		Status:            SessionPending,
		Payload:           payload,
		CheckoutURL:       session.URL,
	}
	if err := h.sessions.Create(r.Context(), rec); err != nil {
		h.logger.Error("failed to persist plan session", "error", err, "tenant_id", tenantID)
		h.respondError(w, err)
		return
	}

	h.metrics.ObserveSession(session.Provider, string(PurchaseTenantPlan))
	writeJSON(w, http.StatusCreated, checkoutResponse{
		SessionID:   sessionID.String(),
		CheckoutURL: session.URL,
		Provider:    session.Provider,
		AmountCents: amount,
	})
}

// Verify re-reads a session's settlement state from the provider and applies
// the outcome through the same reconciler the webhooks use. Covers lost
// webhook deliveries.
func (h *CheckoutHandler) Verify(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	session, err := h.sessions.GetByID(r.Context(), sessionID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if session.TenantID != tenantID {
		h.respondError(w, apperr.NotFound("payment session not found"))
		return
	}

	if session.Status == SessionPending {
		gateway, err := h.gatewayByName(session.Provider)
		if err != nil {
			h.respondError(w, err)
			return
		}
		payment, err := gateway.FetchSessionPayment(r.Context(), session.ProviderSessionID)
		if err != nil {
			h.logger.Error("verify re-fetch failed", "error", err, "session_id", sessionID)
			h.respondError(w, err)
			return
		}
		if payment.SessionID == "" {
			payment.SessionID = session.ID.String()
		}
		if err := h.reconciler.ApplyPayment(r.Context(), session.Provider, payment); err != nil {
			h.logger.Error("verify reconcile failed", "error", err, "session_id", sessionID)
			h.respondError(w, err)
			return
		}
		session, err = h.sessions.GetByID(r.Context(), sessionID)
		if err != nil {
			h.respondError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": session.ID.String(),
		"status":     session.Status,
	})
}

func (h *CheckoutHandler) createSession(w http.ResponseWriter, r *http.Request, tenantID uuid.UUID, settings *tenants.Settings, purchaseType PurchaseType, amountCents int64, description string, payload any) {
	gateway, err := h.gatewayFor(settings)
	if err != nil {
		h.respondError(w, err)
		return
	}

	sessionID := uuid.New()
	session, err := gateway.CreateSession(r.Context(), SessionParams{
		SessionID:   sessionID,
		TenantID:    tenantID,
		AmountCents: amountCents,
		Currency:    settings.Currency,
		Description: description,
	})
	if err != nil {
		h.logger.Error("checkout session failed", "error", err, "tenant_id", tenantID, "purchase_type", purchaseType)
		h.respondError(w, err)
		return
	}

	encoded, err := marshalPayload(payload)
	if err != nil {
		h.respondError(w, err)
		return
	}
	rec := &SessionRecord{
		ID:                sessionID,
		TenantID:          tenantID,
		Provider:          session.Provider,
		ProviderSessionID: session.ProviderSessionID,
		PurchaseType:      purchaseType,
		AmountCents:       amountCents,
		Currency:          settings.Currency,
		Status:            SessionPending,
		Payload:           encoded,
		CheckoutURL:       session.URL,
	}
	if err := h.sessions.Create(r.Context(), rec); err != nil {
		h.logger.Error("failed to persist session", "error", err, "tenant_id", tenantID)
		h.respondError(w, err)
		return
	}

	h.metrics.ObserveSession(session.Provider, string(purchaseType))
	h.logger.Info("checkout session created",
		"session_id", sessionID,
		"tenant_id", tenantID,
		"provider", session.Provider,
		"purchase_type", purchaseType,
		"amount_cents", amountCents)
	writeJSON(w, http.StatusCreated, checkoutResponse{
		SessionID:   sessionID.String(),
		CheckoutURL: session.URL,
		Provider:    session.Provider,
		AmountCents: amountCents,
	})
}

// gatewayFor picks the tenant's configured provider.
func (h *CheckoutHandler) gatewayFor(settings *tenants.Settings) (Gateway, error) {
	var gw Gateway
	if settings.UsesStripe() {
		gw = h.stripe
	} else {
		gw = h.square
	}
	if gw == nil || !gw.Configured() {
		return nil, apperr.NotConfigured("payment provider %s is not configured", settings.PaymentProvider)
	}
	return gw, nil
}

func (h *CheckoutHandler) gatewayByName(provider string) (Gateway, error) {
	switch provider {
	case ProviderStripe:
		if h.stripe != nil && h.stripe.Configured() {
			return h.stripe, nil
		}
	case ProviderSquare:
		if h.square != nil && h.square.Configured() {
			return h.square, nil
		}
	}
	return nil, apperr.NotConfigured("payment provider %s is not configured", provider)
}

func (h *CheckoutHandler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid tenant id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *CheckoutHandler) tenantSettings(w http.ResponseWriter, r *http.Request) (uuid.UUID, *tenants.Settings, bool) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return uuid.Nil, nil, false
	}
	settings, err := h.settings.Get(r.Context(), tenantID.String())
	if err != nil {
		h.logger.Error("settings lookup failed", "error", err, "tenant_id", tenantID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return uuid.Nil, nil, false
	}
	return tenantID, settings, true
}

func (h *CheckoutHandler) respondError(w http.ResponseWriter, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict, apperr.KindStaleEntitlement:
		status = http.StatusConflict
	case apperr.KindNotConfigured:
		status = http.StatusUnprocessableEntity
	case apperr.KindExternalProvider:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func parseUUIDs(in []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(in))
	for _, raw := range in {
		if id, err := uuid.Parse(raw); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
